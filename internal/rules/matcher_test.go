package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/cumin/internal/model"
	"github.com/Veraticus/cumin/internal/testutil"
	"github.com/Veraticus/cumin/internal/tokens"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func newTestMatcher(source RuleSource) *Matcher {
	return NewMatcher(source, tokens.NewSanitizer(nil, tokens.DefaultMinTokenLength))
}

func TestMatcher_FindMatchingAfterGenerate(t *testing.T) {
	db := testutil.SetupTestDB(t, nil)
	ctx := context.Background()

	_, err := newTestGenerator(db.Storage).Generate(ctx, scenarioEvent())
	require.NoError(t, err)

	m := newTestMatcher(db.Storage)
	matches, err := m.FindMatching(ctx, "alice", "Sole y Gian", amount("600.00"), "UYU")
	require.NoError(t, err)

	require.Len(t, matches, 2, "amount rules must not match a different amount")
	assert.Equal(t, "tokens+currency", matches[0].Rule.Variant())
	assert.Equal(t, 0.35, matches[0].Score)
	assert.Equal(t, "tokens", matches[1].Rule.Variant())
	assert.Equal(t, 0.2, matches[1].Score)

	t.Run("exact amount matches every variant", func(t *testing.T) {
		matches, err := m.FindMatching(ctx, "alice", "SOLE Y GIAN", amount("582"), "uyu")
		require.NoError(t, err)
		require.Len(t, matches, 4)
		assert.Equal(t, 0.6, matches[0].Score)
	})

	t.Run("different currency", func(t *testing.T) {
		matches, err := m.FindMatching(ctx, "alice", "Sole y Gian", amount("582"), "USD")
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "tokens+amount", matches[0].Rule.Variant())
	})

	t.Run("richer description still matches", func(t *testing.T) {
		matches, err := m.FindMatching(ctx, "alice", "Transferencia a Sole y Gian cumple", amount("1"), "UYU")
		require.NoError(t, err)
		assert.Len(t, matches, 2)
	})

	t.Run("missing token", func(t *testing.T) {
		matches, err := m.FindMatching(ctx, "alice", "Sole", amount("582"), "UYU")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("decomposed description", func(t *testing.T) {
		ev := scenarioEvent()
		ev.Description = "CAF\u00c9 MART\u00cdNEZ"
		ev.Category = "Food"
		_, err := newTestGenerator(db.Storage).Generate(ctx, ev)
		require.NoError(t, err)

		matches, err := m.FindMatching(ctx, "alice", "CAFE\u0301 MARTI\u0301NEZ", amount("582"), "UYU")
		require.NoError(t, err)
		require.Len(t, matches, 4)
		assert.Equal(t, "Food", matches[0].Rule.Category)
	})

	t.Run("other owner", func(t *testing.T) {
		matches, err := m.FindMatching(ctx, "bob", "Sole y Gian", amount("582"), "UYU")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestMatcher_Ordering(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	rule := func(id int64, spec float64, usage int, lastUsed *time.Time) model.Rule {
		return model.Rule{
			ID:          id,
			Owner:       "alice",
			Tokens:      model.NewTokenSet("netflix"),
			Category:    "Subscriptions",
			Specificity: spec,
			UsageCount:  usage,
			LastUsedAt:  lastUsed,
			Accuracy:    1,
		}
	}

	source := staticSource{
		rule(1, 0.1, 9, &now),
		rule(2, 0.1, 3, nil),
		rule(3, 0.1, 3, &earlier),
		rule(4, 0.1, 3, &now),
		rule(5, 0.1, 3, &now),
	}

	matches, err := newTestMatcher(source).FindMatching(context.Background(), "alice", "NETFLIX.COM", decimal.NullDecimal{}, "USD")
	require.NoError(t, err)

	var ids []int64
	for _, m := range matches {
		ids = append(ids, m.Rule.ID)
	}
	assert.Equal(t, []int64{1, 4, 5, 3, 2}, ids)
}

func TestMatcher_NeverReturnsNonSubsets(t *testing.T) {
	source := staticSource{
		{ID: 1, Tokens: model.NewTokenSet("coffee"), Specificity: 0.1},
		{ID: 2, Tokens: model.NewTokenSet("coffee", "starb"), Specificity: 0.2},
		{ID: 3, Tokens: model.NewTokenSet("coffee", "latte", "starb"), Specificity: 0.3},
		{ID: 4, Tokens: model.NewTokenSet("tea"), Specificity: 0.1},
	}
	s := tokens.NewSanitizer(nil, tokens.DefaultMinTokenLength)
	m := NewMatcher(source, s)

	descriptions := []string{"STARB COFFEE", "coffee", "Starb latte coffee", "tea coffee", "nothing here", ""}
	for _, d := range descriptions {
		matches, err := m.FindMatching(context.Background(), "alice", d, decimal.NullDecimal{}, "")
		require.NoError(t, err)
		query := s.Sanitize(d)
		for _, match := range matches {
			assert.True(t, match.Rule.Tokens.SubsetOf(query), "rule %d returned for %q", match.Rule.ID, d)
		}
	}
}

func TestMatches(t *testing.T) {
	query := model.NewTokenSet("gian", "sole")

	tests := []struct {
		name     string
		rule     model.Rule
		amount   decimal.NullDecimal
		currency string
		want     bool
	}{
		{name: "tokens only", rule: model.Rule{Tokens: query}, amount: amount("1"), currency: "UYU", want: true},
		{name: "amount equal with different scale", rule: model.Rule{Tokens: query, Amount: amount("582.00")}, amount: amount("582"), want: true},
		{name: "amount differs", rule: model.Rule{Tokens: query, Amount: amount("582")}, amount: amount("582.01"), want: false},
		{name: "amount rule without query amount", rule: model.Rule{Tokens: query, Amount: amount("582")}, want: false},
		{name: "currency case-insensitive", rule: model.Rule{Tokens: query, Currency: "UYU"}, currency: "uyu", want: true},
		{name: "currency differs", rule: model.Rule{Tokens: query, Currency: "UYU"}, currency: "USD", want: false},
		{name: "superset rule", rule: model.Rule{Tokens: model.NewTokenSet("gian", "sole", "xx")}, want: false},
		{name: "empty rule tokens", rule: model.Rule{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.rule, query, tt.amount, tt.currency))
		})
	}
}

func TestMatcher_StoreError(t *testing.T) {
	m := newTestMatcher(failingSource{err: errors.New("database is locked")})

	_, err := m.FindMatching(context.Background(), "alice", "netflix", decimal.NullDecimal{}, "USD")
	assert.Error(t, err)

	// No tokens means no lookup at all
	matches, err := m.FindMatching(context.Background(), "alice", "the bank", decimal.NullDecimal{}, "USD")
	assert.NoError(t, err)
	assert.Empty(t, matches)
}

type staticSource []model.Rule

func (s staticSource) CandidateRules(_ context.Context, _, _ string) ([]model.Rule, error) {
	out := make([]model.Rule, len(s))
	copy(out, s)
	return out, nil
}

type failingSource struct {
	err error
}

func (f failingSource) CandidateRules(_ context.Context, _, _ string) ([]model.Rule, error) {
	return nil, f.err
}
