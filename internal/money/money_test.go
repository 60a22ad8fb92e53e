package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"50000", "50000", true},
		{"0.10", "0.1", true},
		{" 1.5 ", "1.5", true},
		{"-3.25", "-3.25", true},
		{"1e-8", "0.00000001", true},
		{"", "", false},
		{"abc", "", false},
		{"NaN", "", false},
		{"-Inf", "", false},
		{"1.2.3", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := Parse(tt.in)
			if !tt.ok {
				var ve *domain.ValidationError
				assert.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestParsePositive(t *testing.T) {
	_, err := ParsePositive("price", "0")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "price", ve.Field)

	_, err = ParsePositive("size", "x")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "size", ve.Field)

	d, err := ParsePositive("size", "0.25")
	require.NoError(t, err)
	assert.Equal(t, "0.25", d.String())
}

func TestDiv(t *testing.T) {
	_, err := Div(One, Zero)
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)

	q, err := Div(MustParse("1"), MustParse("3"))
	require.NoError(t, err)
	assert.Equal(t, "0."+repeat("3", DivisionPlaces), q.String())

	q, err = Div(MustParse("-2"), MustParse("3"))
	require.NoError(t, err)
	assert.Equal(t, "-0."+repeat("6", DivisionPlaces), q.String(), "truncates toward zero")

	q, err = Div(MustParse("100.5"), MustParse("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "201", q.String())
}

func TestRoundTruncates(t *testing.T) {
	assert.Equal(t, "1.99", Round(MustParse("1.999"), 2).String())
	assert.Equal(t, "-1.99", Round(MustParse("-1.999"), 2).String())
	assert.Equal(t, "5", Round(MustParse("5"), 8).String())
}

func TestMinMaxMid(t *testing.T) {
	a, b := MustParse("50000"), MustParse("50100")
	assert.True(t, Min(a, b).Equal(a))
	assert.True(t, Max(a, b).Equal(b))
	m, err := Mid(a, b)
	require.NoError(t, err)
	assert.Equal(t, "50050", m.String())
	assert.Equal(t, "0.5", Fee(MustParse("1000"), MustParse("0.0005")).String())
}

func TestDecimalRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unscaled := rapid.Int64().Draw(t, "unscaled")
		exp := rapid.Int32Range(-30, 10).Draw(t, "exp")
		s := decimal.New(unscaled, exp).String()

		first, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		second, err := Parse(first.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", first.String(), err)
		}
		if !first.Equal(second) || first.String() != second.String() {
			t.Fatalf("round trip changed %s -> %s", first, second)
		}
		if _, err := Div(first, Zero); err == nil {
			t.Fatalf("division of %s by zero succeeded", first)
		}
	})
}

func TestAddSubExact(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := decimal.New(rapid.Int64Range(-1e15, 1e15).Draw(t, "a"), -rapid.Int32Range(0, 18).Draw(t, "ae"))
		b := decimal.New(rapid.Int64Range(-1e15, 1e15).Draw(t, "b"), -rapid.Int32Range(0, 18).Draw(t, "be"))
		if !a.Add(b).Sub(b).Equal(a) {
			t.Fatalf("(%s + %s) - %s != %s", a, b, b, a)
		}
	})
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
