package apperr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindOf_WalksWrappedChain(t *testing.T) {
	base := NotFound("Shipment")
	wrapped := errors.Wrap(base, "get shipment")

	require.Equal(t, KindNotFound, KindOf(wrapped))
	require.True(t, Is(wrapped, KindNotFound))
	require.False(t, Is(wrapped, KindConflict))
	require.Equal(t, "Shipment not found", base.Error())
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.Equal(t, Kind(""), KindOf(nil))
	require.False(t, Is(nil, KindInternal))
}

func TestValidation_DefaultsMessageAndKeepsFields(t *testing.T) {
	err := Validation("", FieldError{Field: "sender.name", Message: "is required"})
	require.Equal(t, "Validation error", err.Message)
	require.Len(t, err.Fields, 1)
	require.Equal(t, "sender.name", err.Fields[0].Field)
}

func TestDependency_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency("database unavailable", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection refused")

	ae, ok := As(errors.Wrap(err, "list"))
	require.True(t, ok)
	require.Equal(t, KindDependency, ae.Kind)
}
