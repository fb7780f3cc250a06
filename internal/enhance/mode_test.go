package enhance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/pixelfix/pkg/models"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want models.Mode
	}{
		{"", ""},
		{"single", models.ModeSingle},
		{"chain", models.ModeChain},
		{" Chain ", models.ModeChain},
		{"SINGLE", models.ModeSingle},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMode_Rejects(t *testing.T) {
	for _, in := range []string{"turbo", "single,chain", "upscale"} {
		_, err := ParseMode(in)
		assert.ErrorIs(t, err, ErrInvalidMode, in)
	}
}
