package rules

import (
	"testing"

	"github.com/Veraticus/cumin/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestSpecificity(t *testing.T) {
	tests := []struct {
		name        string
		tokens      model.TokenSet
		hasAmount   bool
		hasCurrency bool
		want        float64
	}{
		{name: "two tokens only", tokens: model.NewTokenSet("gian", "sole"), want: 0.2},
		{name: "two tokens with currency", tokens: model.NewTokenSet("gian", "sole"), hasCurrency: true, want: 0.35},
		{name: "two tokens with amount", tokens: model.NewTokenSet("gian", "sole"), hasAmount: true, want: 0.45},
		{name: "two tokens fully specified", tokens: model.NewTokenSet("gian", "sole"), hasAmount: true, hasCurrency: true, want: 0.6},
		{name: "token component capped", tokens: model.NewTokenSet("a1", "b2", "c3", "d4", "e5", "f6", "g7"), want: 0.5},
		{name: "maximum", tokens: model.NewTokenSet("a1", "b2", "c3", "d4", "e5"), hasAmount: true, hasCurrency: true, want: 1.0},
		{name: "three tokens", tokens: model.NewTokenSet("a1", "b2", "c3"), want: 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Specificity(tt.tokens, tt.hasAmount, tt.hasCurrency)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpecificity_MoreStructureNeverScoresLower(t *testing.T) {
	for n := 1; n <= 8; n++ {
		words := make([]string, n)
		for i := range words {
			words[i] = string(rune('a'+i)) + "x"
		}
		ts := model.NewTokenSet(words...)

		base := Specificity(ts, false, false)
		assert.GreaterOrEqual(t, Specificity(ts, true, true), base)
		assert.GreaterOrEqual(t, Specificity(ts, false, true), base)
		assert.GreaterOrEqual(t, Specificity(ts, true, false), base)
		assert.LessOrEqual(t, Specificity(ts, true, true), 1.0)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "UYU", want: "UYU"},
		{in: " usd ", want: "USD"},
		{in: "", want: ""},
		{in: "EURO", wantErr: true},
		{in: "U$", wantErr: true},
		{in: "12A", wantErr: true},
		{in: "ÑAB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeCurrency(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
