package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionInText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want Direction
	}{
		{"Up", Up},
		{"  BUY  ", Up},
		{"Higher payout", Up},
		{"Down", Down},
		{"bear-chip active", Down},
		{"Up / Down", Unknown},
		{"Cash Out", Unknown},
		{"", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DirectionInText(tt.text))
		})
	}
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "place bet", NormalizeText("  PLACE\n\t BET "))
}
