package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message only",
			err:  New(CodeIntegrity, "cycle detected"),
			want: "INTEGRITY: cycle detected",
		},
		{
			name: "with details sorted",
			err:  New(CodeNotFound, "graph not found").With("z", "1").With("a", "2"),
			want: "NOT_FOUND: graph not found (a=2, z=1)",
		},
		{
			name: "with cause",
			err:  NewStorage("register", errors.New("disk full")),
			want: "STORAGE: register failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsHelpersSeeThroughWrapping(t *testing.T) {
	base := NewNotFound("graph", "g1")
	wrapped := fmt.Errorf("retrieve graph: %w", base)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsIntegrity(wrapped))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeStorage, cause, "write")
	assert.ErrorIs(t, err, cause)
}

func TestConstructors(t *testing.T) {
	assert.True(t, IsUnsupported(NewUnsupported("DidRegistration", "attribute store")))
	assert.True(t, IsMalformed(NewMalformed("CID list must not be empty.")))
	assert.True(t, IsIntegrity(NewIntegrity("cycle")))
	assert.True(t, IsStorage(NewStorage("x", nil)))
	assert.True(t, IsAlreadyExists(New(CodeAlreadyExists, "dup")))
	assert.True(t, IsFilterSyntax(New(CodeFilterSyntax, "bad")))
	assert.True(t, IsIdentityMismatch(New(CodeIdentityMismatch, "bad")))
	assert.Equal(t, "g1", NewNotFound("graph", "g1").Details["graph"])
}
