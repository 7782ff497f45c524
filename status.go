package mqtt311

import "errors"

// Status is the result code of a connection operation.
//
// Negative values are client side conditions. Values 1-5 mirror the CONNACK
// return codes of the same number; 6 reports an undecodable PUBLISH or a
// rejected SUBACK.
type Status int8

// Connection status codes.
const (
	StatusInvalidArgument       Status = -64
	StatusNoConnection          Status = -63
	StatusAlreadyConnected      Status = -62
	StatusPingNotSent           Status = -61
	StatusSuccess               Status = 0
	StatusInvalidVersion        Status = 1
	StatusInvalidIdentifier     Status = 2
	StatusServerUnavailable     Status = 3
	StatusBadUsernameOrPassword Status = 4
	StatusNotAuthorized         Status = 5
	StatusPublishDecodeError    Status = 6
)

var statusStrings = map[Status]string{
	StatusInvalidArgument:       "invalid argument",
	StatusNoConnection:          "no connection",
	StatusAlreadyConnected:      "already connected",
	StatusPingNotSent:           "ping not sent",
	StatusSuccess:               "success",
	StatusInvalidVersion:        "invalid protocol version",
	StatusInvalidIdentifier:     "invalid client identifier",
	StatusServerUnavailable:     "server unavailable",
	StatusBadUsernameOrPassword: "bad username or password",
	StatusNotAuthorized:         "not authorized",
	StatusPublishDecodeError:    "publish decode error",
}

// String returns the human-readable description of the status.
func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return "unknown status"
}

// Error implements the error interface so a Status can travel as an error.
func (s Status) Error() string {
	return "mqtt: " + s.String()
}

// IsSuccess reports whether the status is StatusSuccess.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsRefusal reports whether the status carries a CONNACK refusal code.
func (s Status) IsRefusal() bool {
	return s >= StatusInvalidVersion && s <= StatusNotAuthorized
}

// Err returns nil for StatusSuccess and the status itself otherwise.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	return s
}

// StatusOf extracts a Status from err. A nil error is StatusSuccess; an error
// that does not wrap a Status is StatusInvalidArgument.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}

	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusInvalidArgument
}
