package money

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundCents(t *testing.T) {
	cases := map[float64]float64{
		0:         0,
		1.005:     1.01,
		1.004:     1,
		2.675:     2.68,
		57.3:      57.3,
		5.7300001: 5.73,
		0.3:       0.3,
		-1.234:    -1.23,
	}
	for in, want := range cases {
		require.Equal(t, want, RoundCents(in), "RoundCents(%v)", in)
	}
}

func TestRoundCentsIdempotent(t *testing.T) {
	inputs := []float64{0.015, 1.005, 3.14159, 99.995, 12345.678, -0.005, 0.1 + 0.7, 1e6 / 3}
	for _, x := range inputs {
		once := RoundCents(x)
		require.Equal(t, once, RoundCents(once), "input %v", x)
	}
}

func TestArithmeticAvoidsDrift(t *testing.T) {
	var total float64
	for i := 0; i < 10; i++ {
		total = Add(total, 0.1)
	}
	require.Equal(t, 1.0, total)
	require.Equal(t, 31.57, Sub(Sub(57.3, 20), 5.73))
	require.Equal(t, 5.73, Percent(57.3, 10))
	require.Equal(t, 0.75, Mul(0.25, 3))
	require.Equal(t, 0.0, NonNegative(-4.2))
	require.Equal(t, 1.5, Min(1.5, 2))
}

func TestParseAmount(t *testing.T) {
	v, ok := ParseAmount("35.00")
	require.True(t, ok)
	require.Equal(t, 35.0, v)

	v, ok = ParseAmount("1.234,56")
	require.True(t, ok)
	require.Equal(t, 1234.56, v)

	v, ok = ParseAmount(" 20,5 ")
	require.True(t, ok)
	require.Equal(t, 20.5, v)

	for _, bad := range []string{"", "  ", "abc", "0", "-3", "0,00"} {
		_, ok := ParseAmount(bad)
		require.False(t, ok, "input %q", bad)
	}
}

func TestFormatter(t *testing.T) {
	f := NewFormatter("de-DE", "EUR")
	out := f.Format(57.3)
	require.Contains(t, out, "57,30")
	require.True(t, strings.Contains(out, "€"), out)
	require.Equal(t, "EUR", f.Code())

	fallback := NewFormatter("??", "nope")
	require.Equal(t, "EUR", fallback.Code())
}
