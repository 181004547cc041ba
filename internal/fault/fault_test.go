// SPDX-License-Identifier: MIT

package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Kind("")},
		{"not found", NotFound("zone %d", 7), KindNotFound},
		{"invalid", Invalid("volume out of range"), KindInvalid},
		{"wrapped in fmt", fmt.Errorf("outer: %w", Unavailable("snapcast down")), KindUnavailable},
		{"foreign error", errors.New("plain"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapNilIsNil(t *testing.T) {
	require.NoError(t, Wrap(nil, KindExternal, "ignored"))
}

func TestMessageOmitsKindPrefix(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain fault", Invalid("volume must be between 0 and 100"), "volume must be between 0 and 100"},
		{"wrapped cause", Wrap(errors.New("dial tcp: refused"), KindUnavailable, "snapcast down"), "snapcast down: dial tcp: refused"},
		{"nested faults", Wrap(NotFound("zone 9"), KindExternal, "lookup failed"), "lookup failed: zone 9"},
		{"foreign error", errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, KindExternal, "subsonic ping")

	require.Error(t, err)
	assert.True(t, Is(err, KindExternal))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "External: subsonic ping: connection reset")
}
