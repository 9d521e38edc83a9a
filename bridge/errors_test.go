package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := NewError(KindNotFound, "/tmp/missing", errors.New("gone"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(err, KindPermission))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(0), KindOf(nil))
}

func TestKindOfWrapped(t *testing.T) {
	inner := NewError(KindAuth, "", errors.New("bad password"))
	wrapped := fmt.Errorf("connecting: %w", inner)
	assert.Equal(t, KindAuth, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindAuth))
}

func TestErrorMessage(t *testing.T) {
	err := NewError(KindPermission, "/etc/shadow", errors.New("denied"))
	assert.Equal(t, "permission denied: /etc/shadow: denied", err.Error())
	bare := &Error{Kind: KindConnection}
	assert.Equal(t, "connection error", bare.Error())
}

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "i/o timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func TestConnectionErrorTimeout(t *testing.T) {
	err := connectionError("host:22", fakeTimeoutError{})
	assert.True(t, err.TimedOut)
	assert.Equal(t, KindConnection, err.Kind)
	assert.Contains(t, err.Error(), "timed out")

	plain := connectionError("host:22", errors.New("refused"))
	assert.False(t, plain.TimedOut)
}

func TestNotConnectedError(t *testing.T) {
	err := notConnectedError()
	assert.Equal(t, KindConnection, err.Kind)
	assert.Contains(t, err.Error(), "not connected")
}
