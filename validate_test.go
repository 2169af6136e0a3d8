package homie

// test the id rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateID(t *testing.T) {
	valid := []string{"now-is-the-time", "a1", "0x", "temperature", "node-2"}
	for _, id := range valid {
		assert.NoError(t, ValidateID(id), "id %q", id)
	}

	invalid := []string{
		"",
		"a",
		"now_is_the_time",
		"now-Is-The-Time",
		"-leading",
		"with/slash",
		"now-is-the-$-time",
		"$state",
		"with space",
	}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidIdentifier, "id %q", id)
	}
}

func TestIDFromName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Living Room Plug", "living-room-plug"},
		{"now_Is_The_Time", "now-is-the-time"},
		{"  Kitchen #2  ", "kitchen-2"},
		{"Café Lamp", "cafe-lamp"},
	}
	for _, tt := range tests {
		got, err := IDFromName(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got)
	}

	for _, name := range []string{"", "---"} {
		_, err := IDFromName(name)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "name %q", name)
	}
}
