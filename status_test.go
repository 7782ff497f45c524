package mqtt311

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusValues(t *testing.T) {
	tests := []struct {
		status Status
		value  int8
		str    string
	}{
		{StatusInvalidArgument, -64, "invalid argument"},
		{StatusNoConnection, -63, "no connection"},
		{StatusAlreadyConnected, -62, "already connected"},
		{StatusPingNotSent, -61, "ping not sent"},
		{StatusSuccess, 0, "success"},
		{StatusInvalidVersion, 1, "invalid protocol version"},
		{StatusInvalidIdentifier, 2, "invalid client identifier"},
		{StatusServerUnavailable, 3, "server unavailable"},
		{StatusBadUsernameOrPassword, 4, "bad username or password"},
		{StatusNotAuthorized, 5, "not authorized"},
		{StatusPublishDecodeError, 6, "publish decode error"},
		{Status(42), 42, "unknown status"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.value, int8(tt.status))
			assert.Equal(t, tt.str, tt.status.String())
			assert.Equal(t, "mqtt: "+tt.str, tt.status.Error())
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusSuccess.IsSuccess())
	assert.False(t, StatusPingNotSent.IsSuccess())

	for s := StatusInvalidVersion; s <= StatusNotAuthorized; s++ {
		assert.True(t, s.IsRefusal(), s.String())
	}
	assert.False(t, StatusSuccess.IsRefusal())
	assert.False(t, StatusPublishDecodeError.IsRefusal())
	assert.False(t, StatusNoConnection.IsRefusal())
}

func TestStatusErr(t *testing.T) {
	assert.NoError(t, StatusSuccess.Err())

	err := StatusNoConnection.Err()
	assert.Error(t, err)
	assert.ErrorIs(t, err, StatusNoConnection)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{name: "nil", err: nil, want: StatusSuccess},
		{name: "status", err: StatusNotAuthorized, want: StatusNotAuthorized},
		{name: "wrapped status", err: fmt.Errorf("publish: %w", StatusNoConnection), want: StatusNoConnection},
		{name: "connect error", err: NewConnectError(StatusInvalidIdentifier), want: StatusInvalidIdentifier},
		{name: "plain error", err: errors.New("boom"), want: StatusInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}
