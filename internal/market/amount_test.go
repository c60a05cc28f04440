package market

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basedguardians/marketd/internal/domain"
)

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad wei literal: " + s)
	}
	return v
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *big.Int
	}{
		{"whole number", "500", wei("500000000000000000000")},
		{"one", "1", wei("1000000000000000000")},
		{"fraction only", "0.5", wei("500000000000000000")},
		{"leading dot", ".5", wei("500000000000000000")},
		{"mixed", "1.25", wei("1250000000000000000")},
		{"full precision", "0.000000000000000001", big.NewInt(1)},
		{"zero", "0", big.NewInt(0)},
		{"whitespace trimmed", "  2  ", wei("2000000000000000000")},
		{"trailing dot", "3.", wei("3000000000000000000")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			require.NoError(t, err)
			assert.Zero(t, tt.want.Cmp(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestParseAmountRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"negative", "-1"},
		{"explicit positive sign", "+1"},
		{"bare dot", "."},
		{"letters", "abc"},
		{"mixed garbage", "1.2x"},
		{"two dots", "1.2.3"},
		{"too many decimals", "0.0000000000000000001"},
		{"hex", "0x10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAmount(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrPriceInvalid)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name  string
		input *big.Int
		want  string
	}{
		{"nil", nil, "0"},
		{"zero", big.NewInt(0), "0"},
		{"whole", wei("500000000000000000000"), "500"},
		{"half", wei("500000000000000000"), "0.5"},
		{"mixed trims zeros", wei("1250000000000000000"), "1.25"},
		{"smallest unit", big.NewInt(1), "0.000000000000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(tt.input))
		})
	}
}

func TestAmountRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "0.5", "1234.5678", "0.000000000000000001"} {
		v, err := ParseAmount(s)
		require.NoError(t, err)
		assert.Equal(t, s, FormatAmount(v))
	}
}
