package rules

import (
	"math"

	"github.com/Veraticus/cumin/internal/model"
)

// Specificity weights. A rule with five or more tokens, an amount and a
// currency scores the maximum of 1.0.
const (
	tokenWeight       = 0.1
	maxTokenComponent = 0.5
	amountComponent   = 0.25
	currencyComponent = 0.15
)

// Specificity measures how narrowly a rule is defined. It depends only on
// the rule's structure and is computed once, when the rule is created.
// The result is rounded to four decimals so equal structures compare equal.
func Specificity(tokens model.TokenSet, hasAmount, hasCurrency bool) float64 {
	score := math.Min(maxTokenComponent, tokenWeight*float64(tokens.Len()))
	if hasAmount {
		score += amountComponent
	}
	if hasCurrency {
		score += currencyComponent
	}
	return math.Round(score*10000) / 10000
}

// RuleSpecificity is Specificity for an existing rule's structure.
func RuleSpecificity(rule model.Rule) float64 {
	return Specificity(rule.Tokens, rule.HasAmount(), rule.HasCurrency())
}
