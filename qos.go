package mqtt311

import "strconv"

// QoS is the MQTT quality of service level.
type QoS byte

// QoS levels. Only QoS0 delivery is carried out by this package; QoS1 and QoS2
// are encoded and decoded structurally.
const (
	QoS0 QoS = 0
	QoS1 QoS = 1
	QoS2 QoS = 2

	// QoSInvalid is the reserved value 3.
	QoSInvalid QoS = 3
)

// Valid reports whether q is 0, 1 or 2.
func (q QoS) Valid() bool {
	return q < QoSInvalid
}

// String returns the string representation of the QoS level.
func (q QoS) String() string {
	if !q.Valid() {
		return "QoS(invalid)"
	}
	return "QoS" + strconv.Itoa(int(q))
}
