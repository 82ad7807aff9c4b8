package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/model"
)

// GetUserRuleStats aggregates owner's rules. TopRules holds at most topN
// rules, most used first.
func (e *Engine) GetUserRuleStats(ctx context.Context, owner string, topN int) (*model.RuleStats, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, common.InvalidInput("owner is required")
	}
	if topN < 0 {
		return nil, common.InvalidInput("top must not be negative, got %d", topN)
	}

	stats, err := e.store.RuleStats(ctx, owner, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule stats: %w", err)
	}
	return stats, nil
}

// CleanupStaleRules permanently deletes owner's rules used fewer than
// minUsage times whose last use, or creation if never used, is more than
// maxAgeDays ago. It returns how many rules were removed.
func (e *Engine) CleanupStaleRules(ctx context.Context, owner string, maxAgeDays, minUsage int) (int, error) {
	if strings.TrimSpace(owner) == "" {
		return 0, common.InvalidInput("owner is required")
	}
	if err := validateCleanup(maxAgeDays, minUsage); err != nil {
		return 0, err
	}

	cutoff := e.now().AddDate(0, 0, -maxAgeDays)
	removed, err := e.store.DeleteStaleRules(ctx, owner, cutoff, minUsage)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up stale rules: %w", err)
	}

	if removed > 0 {
		slog.Info("Removed stale rules",
			"owner", owner,
			"removed", removed,
			"max_age_days", maxAgeDays,
			"min_usage", minUsage)
	}
	return removed, nil
}

// CleanupAllStaleRules runs CleanupStaleRules for every owner and returns
// the total removed.
func (e *Engine) CleanupAllStaleRules(ctx context.Context, maxAgeDays, minUsage int) (int, error) {
	if err := validateCleanup(maxAgeDays, minUsage); err != nil {
		return 0, err
	}

	owners, err := e.store.ListOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list owners: %w", err)
	}

	total := 0
	for _, owner := range owners {
		removed, err := e.CleanupStaleRules(ctx, owner, maxAgeDays, minUsage)
		if err != nil {
			return total, fmt.Errorf("owner %s: %w", owner, err)
		}
		total += removed
	}
	return total, nil
}

// AdjustRuleAccuracy records feedback about a rule by setting its accuracy,
// clamped to [0, 1]. Rules below the engine's accuracy threshold stop
// being applied. It returns the updated rule.
func (e *Engine) AdjustRuleAccuracy(ctx context.Context, owner string, ruleID int64, accuracy float64) (*model.Rule, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, common.InvalidInput("owner is required")
	}
	if math.IsNaN(accuracy) {
		return nil, common.InvalidInput("accuracy must be a number")
	}
	accuracy = math.Max(0, math.Min(1, accuracy))

	if err := e.store.SetRuleAccuracy(ctx, owner, ruleID, accuracy); err != nil {
		return nil, fmt.Errorf("failed to adjust rule accuracy: %w", err)
	}

	rule, err := e.store.GetRule(ctx, owner, ruleID)
	if err != nil {
		return nil, err
	}

	slog.Info("Adjusted rule accuracy",
		"owner", owner,
		"rule_id", ruleID,
		"accuracy", accuracy,
		"below_threshold", accuracy < e.cfg.ThresholdAccuracy)

	return rule, nil
}

func validateCleanup(maxAgeDays, minUsage int) error {
	if maxAgeDays < 0 {
		return common.InvalidInput("max age must not be negative, got %d days", maxAgeDays)
	}
	if minUsage < 0 {
		return common.InvalidInput("min usage must not be negative, got %d", minUsage)
	}
	return nil
}
