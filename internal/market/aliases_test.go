package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTC", "BTC"},
		{"btc", "BTC"},
		{" eth ", "ETH"},
		{"MIOTA", "IOTA"},
		{"miota", "IOTA"},
		{"XBT", "BTC"},
		{"BCC", "BCH"},
		{"MATIC", "POL"},
		{"UNKNOWN42", "UNKNOWN42"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalSymbol(tt.in))
		})
	}
}
