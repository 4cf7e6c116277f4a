package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := Forbidden("only the admin can rename the group")
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "only the admin can rename the group", ClientMessage(err))

	wrapped := fmt.Errorf("rename: %w", err)
	assert.True(t, errors.Is(wrapped, ErrForbidden))
	assert.Equal(t, "only the admin can rename the group", ClientMessage(wrapped))
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Internal(cause, "could not store message")
	assert.True(t, errors.Is(err, ErrInternal))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "could not store message", ClientMessage(err))
	assert.Equal(t, "internal server error", ClientMessage(cause))
}

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, DirectKey("a", "b"), DirectKey("b", "a"))
	assert.NotEqual(t, DirectKey("a", "b"), DirectKey("a", "c"))
}

func TestNewWebsocketMessage(t *testing.T) {
	raw, err := NewWebsocketMessage(SignalConnected, nil)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"event":"connected"}`, string(raw))

	raw, err = NewWebsocketMessage(SignalTyping, "room-1")
	assert.NoError(t, err)
	assert.JSONEq(t, `{"event":"typing","data":"room-1"}`, string(raw))
}
