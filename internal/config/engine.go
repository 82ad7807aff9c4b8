package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/tokens"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Stopword file modes.
const (
	StopwordsReplace = "replace"
	StopwordsExtend  = "extend"
)

// Engine holds the thresholds and vocabulary the rule engine runs with.
// It is passed by value into the engine constructor; nothing reads it from
// package-level state.
type Engine struct {
	Stopwords         []string
	MinScoreApply     float64
	ThresholdAccuracy float64
	DefaultAccuracy   float64
	MinTokenLength    int
	Workers           int
}

// DefaultEngine returns the engine defaults.
func DefaultEngine() Engine {
	return Engine{
		Stopwords:         tokens.DefaultStopwords(),
		MinScoreApply:     0.1,
		ThresholdAccuracy: 0.5,
		DefaultAccuracy:   1.0,
		MinTokenLength:    tokens.DefaultMinTokenLength,
		Workers:           4,
	}
}

// Validate checks that thresholds are within range.
func (e Engine) Validate() error {
	if e.MinScoreApply < 0 || e.MinScoreApply > 1 {
		return fmt.Errorf("%w: min_score_apply must be between 0 and 1, got %.2f", common.ErrInvalidConfig, e.MinScoreApply)
	}
	if e.ThresholdAccuracy < 0 || e.ThresholdAccuracy > 1 {
		return fmt.Errorf("%w: threshold_accuracy must be between 0 and 1, got %.2f", common.ErrInvalidConfig, e.ThresholdAccuracy)
	}
	if e.DefaultAccuracy < 0 || e.DefaultAccuracy > 1 {
		return fmt.Errorf("%w: default_accuracy must be between 0 and 1, got %.2f", common.ErrInvalidConfig, e.DefaultAccuracy)
	}
	if e.MinTokenLength < 1 {
		return fmt.Errorf("%w: min_token_length must be positive, got %d", common.ErrInvalidConfig, e.MinTokenLength)
	}
	if e.Workers < 1 {
		return fmt.Errorf("%w: workers must be positive, got %d", common.ErrInvalidConfig, e.Workers)
	}
	return nil
}

// LoadEngine reads engine settings from viper, falling back to defaults
// for anything unset. It follows this precedence:
// 1. Viper configuration (config file or CUMIN_ env vars)
// 2. Default values
func LoadEngine(v *viper.Viper) (Engine, error) {
	cfg := DefaultEngine()

	if v.IsSet("engine.min_score_apply") {
		cfg.MinScoreApply = v.GetFloat64("engine.min_score_apply")
	}
	if v.IsSet("engine.threshold_accuracy") {
		cfg.ThresholdAccuracy = v.GetFloat64("engine.threshold_accuracy")
	}
	if v.IsSet("engine.default_accuracy") {
		cfg.DefaultAccuracy = v.GetFloat64("engine.default_accuracy")
	}
	if v.IsSet("engine.min_token_length") {
		cfg.MinTokenLength = v.GetInt("engine.min_token_length")
	}
	if v.IsSet("engine.workers") {
		cfg.Workers = v.GetInt("engine.workers")
	}

	if path := v.GetString("engine.stopwords_file"); path != "" {
		words, err := LoadStopwords(ExpandPath(path))
		if err != nil {
			return cfg, err
		}

		mode := v.GetString("engine.stopwords_mode")
		switch mode {
		case StopwordsReplace:
			cfg.Stopwords = words
		case StopwordsExtend, "":
			cfg.Stopwords = mergeWords(cfg.Stopwords, words)
		default:
			return cfg, fmt.Errorf("%w: stopwords_mode %q", common.ErrInvalidConfig, mode)
		}
	}

	return cfg, cfg.Validate()
}

// stopwordsFile is the on-disk layout of a stopword list.
type stopwordsFile struct {
	Stopwords []string `yaml:"stopwords"`
}

// LoadStopwords reads a YAML file of the form:
//
//	stopwords:
//	  - paypal
//	  - mercadopago
func LoadStopwords(path string) ([]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's config
	if err != nil {
		return nil, fmt.Errorf("failed to read stopwords file: %w", err)
	}

	var file stopwordsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: stopwords file %s: %v", common.ErrInvalidConfig, path, err)
	}

	return mergeWords(nil, file.Stopwords), nil
}

func mergeWords(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	for _, w := range extra {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
