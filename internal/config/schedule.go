package config

import (
	"fmt"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/spf13/viper"
)

// Schedule configures the periodic batch jobs.
type Schedule struct {
	ApplySpec       string
	CleanupSpec     string
	MaxAgeDays      int
	MinUsage        int
	MaxTransactions int
}

// DefaultSchedule returns the scheduling defaults.
func DefaultSchedule() Schedule {
	return Schedule{
		ApplySpec:   "@every 1h",
		CleanupSpec: "@daily",
		MaxAgeDays:  90,
		MinUsage:    1,
	}
}

// LoadSchedule reads scheduling settings from viper.
func LoadSchedule(v *viper.Viper) (Schedule, error) {
	cfg := DefaultSchedule()

	if s := v.GetString("schedule.apply"); s != "" {
		cfg.ApplySpec = s
	}
	if s := v.GetString("schedule.cleanup"); s != "" {
		cfg.CleanupSpec = s
	}
	if v.IsSet("cleanup.max_age_days") {
		cfg.MaxAgeDays = v.GetInt("cleanup.max_age_days")
	}
	if v.IsSet("cleanup.min_usage") {
		cfg.MinUsage = v.GetInt("cleanup.min_usage")
	}
	if v.IsSet("apply.max_transactions") {
		cfg.MaxTransactions = v.GetInt("apply.max_transactions")
	}

	if cfg.MaxAgeDays < 0 || cfg.MinUsage < 0 || cfg.MaxTransactions < 0 {
		return cfg, fmt.Errorf("%w: schedule limits must not be negative", common.ErrInvalidConfig)
	}
	return cfg, nil
}
