package mqtt311

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeWithMochi parses frame with the mochi broker's packet decoder.
func decodeWithMochi(t *testing.T, frame []byte) *packets.Packet {
	t.Helper()

	r := bufio.NewReader(bytes.NewReader(frame))

	hb, err := r.ReadByte()
	require.NoError(t, err)

	fh := packets.FixedHeader{}
	require.NoError(t, fh.Decode(hb))

	remaining, _, err := packets.DecodeLength(r)
	require.NoError(t, err)
	fh.Remaining = remaining

	body := make([]byte, remaining)
	_, err = io.ReadFull(r, body)
	require.NoError(t, err)

	pk := &packets.Packet{FixedHeader: fh, ProtocolVersion: 4}
	switch fh.Type {
	case packets.Connect:
		require.NoError(t, pk.ConnectDecode(body))
	case packets.Publish:
		require.NoError(t, pk.PublishDecode(body))
	case packets.Subscribe:
		require.NoError(t, pk.SubscribeDecode(body))
	default:
		t.Fatalf("unexpected packet type %d", fh.Type)
	}

	return pk
}

func TestPublishPacketEncode(t *testing.T) {
	tests := []struct {
		name string
		pkt  PublishPacket
		want []byte
	}{
		{
			name: "qos0",
			pkt:  PublishPacket{Topic: "a/b", Payload: []byte("hi")},
			want: []byte{0x30, 0x07, 0x00, 0x03, 'a', '/', 'b', 'h', 'i'},
		},
		{
			name: "retain",
			pkt:  PublishPacket{Topic: "a", Payload: []byte("x"), Retain: true},
			want: []byte{0x31, 0x04, 0x00, 0x01, 'a', 'x'},
		},
		{
			name: "empty payload",
			pkt:  PublishPacket{Topic: "a"},
			want: []byte{0x30, 0x03, 0x00, 0x01, 'a'},
		},
		{
			name: "qos1 carries packet id",
			pkt:  PublishPacket{Topic: "a", Payload: []byte("x"), QoS: QoS1, PacketID: 0x0102},
			want: []byte{0x34, 0x06, 0x00, 0x01, 'a', 0x01, 0x02, 'x'},
		},
		{
			name: "qos0 drops packet id",
			pkt:  PublishPacket{Topic: "a", PacketID: 9},
			want: []byte{0x30, 0x03, 0x00, 0x01, 'a'},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := tt.pkt.Encode(&buf)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
			assert.Equal(t, tt.want, buf.Bytes())
		})
	}
}

func TestPublishPacketValidate(t *testing.T) {
	tests := []struct {
		name    string
		pkt     PublishPacket
		wantErr error
	}{
		{name: "valid", pkt: PublishPacket{Topic: "a/b"}},
		{name: "empty topic", pkt: PublishPacket{Payload: []byte("x")}, wantErr: ErrEmptyTopic},
		{name: "topic too long", pkt: PublishPacket{Topic: strings.Repeat("t", 65536)}, wantErr: ErrStringTooLong},
		{name: "invalid qos", pkt: PublishPacket{Topic: "a", QoS: QoSInvalid}, wantErr: ErrInvalidQoS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pkt.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDecodePublish(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		qos         QoS
		wantTopic   string
		wantPayload []byte
		wantErr     error
	}{
		{name: "topic and payload", body: []byte{0x00, 0x01, 'a', 'h', 'i'}, wantTopic: "a", wantPayload: []byte("hi")},
		{name: "empty payload", body: []byte{0x00, 0x01, 'a'}, wantTopic: "a", wantPayload: []byte{}},
		{name: "qos1 skips packet id", body: []byte{0x00, 0x01, 'a', 0x00, 0x05, 'z'}, qos: QoS1, wantTopic: "a", wantPayload: []byte("z")},
		{name: "topic length exceeds body", body: []byte{0x00, 0x05, 'a'}, wantErr: ErrMalformedPacket},
		{name: "packet id missing", body: []byte{0x00, 0x01, 'a', 0x00}, qos: QoS1, wantErr: ErrMalformedPacket},
		{name: "no topic length", body: []byte{0x00}, wantErr: ErrMalformedPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, payload, err := DecodePublish(tt.body, tt.qos)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, topic)
				assert.Nil(t, payload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTopic, string(topic))
			assert.Equal(t, tt.wantPayload, payload)
		})
	}
}

func TestPublishPacketDecodeOwnsData(t *testing.T) {
	body := []byte{0x00, 0x03, 'a', '/', 'b', 'd', 'a', 't', 'a'}

	var pkt PublishPacket
	require.NoError(t, pkt.Decode(body, FixedHeader{Type: PacketPUBLISH, Retain: true}))

	for i := range body {
		body[i] = 0
	}

	assert.Equal(t, "a/b", pkt.Topic)
	assert.Equal(t, []byte("data"), pkt.Payload)
	assert.True(t, pkt.Retain)
	assert.Zero(t, pkt.PacketID)
}

func TestPublishPacketDecodePacketID(t *testing.T) {
	var pkt PublishPacket
	require.NoError(t, pkt.Decode([]byte{0x00, 0x01, 'a', 0xAB, 0xCD, 'p'}, FixedHeader{Type: PacketPUBLISH, QoS: QoS2, DUP: true}))

	assert.Equal(t, uint16(0xABCD), pkt.PacketID)
	assert.Equal(t, []byte("p"), pkt.Payload)
	assert.True(t, pkt.DUP)

	msg := pkt.Message()
	assert.Equal(t, &Message{Topic: "a", Payload: []byte("p"), QoS: QoS2, DUP: true, PacketID: 0xABCD}, msg)
}

func TestPublishPacketDecodedByMochi(t *testing.T) {
	tests := []struct {
		name string
		pkt  PublishPacket
	}{
		{name: "short", pkt: PublishPacket{Topic: "sensors/temp", Payload: []byte("21.5")}},
		{name: "retained", pkt: PublishPacket{Topic: "status", Payload: []byte("online"), Retain: true}},
		{name: "empty payload", pkt: PublishPacket{Topic: "empty"}},
		{name: "large", pkt: PublishPacket{Topic: "blob", Payload: bytes.Repeat([]byte{0x5A}, 20000)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := MarshalPacket(nil, &tt.pkt)
			require.NoError(t, err)

			pk := decodeWithMochi(t, frame)
			assert.Equal(t, packets.Publish, pk.FixedHeader.Type)
			assert.Equal(t, tt.pkt.Retain, pk.FixedHeader.Retain)
			assert.Equal(t, byte(0), pk.FixedHeader.Qos)
			assert.Equal(t, tt.pkt.Topic, pk.TopicName)
			assert.Equal(t, len(tt.pkt.Payload), len(pk.Payload))
			if len(tt.pkt.Payload) > 0 {
				assert.Equal(t, tt.pkt.Payload, pk.Payload)
			}
		})
	}
}

func TestMessageClone(t *testing.T) {
	var nilMsg *Message
	assert.Nil(t, nilMsg.Clone())

	orig := &Message{Topic: "a", Payload: []byte("data"), QoS: QoS1, PacketID: 3}
	clone := orig.Clone()
	assert.Equal(t, orig, clone)

	clone.Payload[0] = 'X'
	assert.Equal(t, []byte("data"), orig.Payload)
}

func BenchmarkPublishPacketMarshal(b *testing.B) {
	pkt := &PublishPacket{Topic: "bench/topic", Payload: bytes.Repeat([]byte("x"), 256)}
	buf := make([]byte, 0, 512)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = MarshalPacket(buf, pkt)
	}
}
