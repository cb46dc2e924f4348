package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MaxWindowHours is the absolute limit on any time window the engine uses.
const MaxWindowHours = 168

// WeightTolerance is the allowed deviation of the weight sum from 1.0.
const WeightTolerance = 1e-6

// Config holds the complete Heron configuration.
type Config struct {
	// Matching engine
	Matching MatchingConfig `json:"matching" yaml:"matching" mapstructure:"matching"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository" mapstructure:"repository"`
	Claims     ClaimStoreConfig `json:"claims" yaml:"claims" mapstructure:"claims"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus" mapstructure:"event_bus"`
	Worker     WorkerConfig     `json:"worker" yaml:"worker" mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// MatchingConfig holds every recognized matching option.
type MatchingConfig struct {
	RuleWeights map[string]float64 `json:"ruleWeights" yaml:"rule_weights" mapstructure:"rule_weights"`

	// AmountTolerancePercent is a fraction: 0.01 means 1%.
	AmountTolerancePercent float64 `json:"amountTolerancePercent" yaml:"amount_tolerance_percent" mapstructure:"amount_tolerance_percent"`
	TimeWindowHours        float64 `json:"timeWindowHours" yaml:"time_window_hours" mapstructure:"time_window_hours"`
	MaxCandidates          int     `json:"maxCandidates" yaml:"max_candidates" mapstructure:"max_candidates"`
	RequireSameCurrency    bool    `json:"requireSameCurrency" yaml:"require_same_currency" mapstructure:"require_same_currency"`
	TieBreakMargin         float64 `json:"tieBreakMargin" yaml:"tie_break_margin" mapstructure:"tie_break_margin"`
	AutoMatchThreshold     float64 `json:"autoMatchThreshold" yaml:"auto_match_threshold" mapstructure:"auto_match_threshold"`
	NeedsReviewThreshold   float64 `json:"needsReviewThreshold" yaml:"needs_review_threshold" mapstructure:"needs_review_threshold"`
	RejectThreshold        float64 `json:"rejectThreshold" yaml:"reject_threshold" mapstructure:"reject_threshold"`
	ExcludeAlreadyMatched  bool    `json:"excludeAlreadyMatched" yaml:"exclude_already_matched" mapstructure:"exclude_already_matched"`

	// Range fallback
	RangeAmountTolerancePercent float64 `json:"rangeAmountTolerancePercent" yaml:"range_amount_tolerance_percent" mapstructure:"range_amount_tolerance_percent"`
	RangeWindowHours            float64 `json:"rangeWindowHours" yaml:"range_window_hours" mapstructure:"range_window_hours"`

	DateBucket BucketGranularity `json:"dateBucket" yaml:"date_bucket" mapstructure:"date_bucket"`

	// CandidateFilter is an optional CEL expression over `txn`.
	CandidateFilter string `json:"candidateFilter,omitempty" yaml:"candidate_filter,omitempty" mapstructure:"candidate_filter"`

	// RetrievalTimeout bounds each pool call; zero means no engine timeout.
	RetrievalTimeout time.Duration `json:"retrievalTimeout" yaml:"retrieval_timeout" mapstructure:"retrieval_timeout"`

	// Workers bounds parallel candidate scoring and parallel batch modes.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// DefaultMatchingConfig returns the default matching options.
func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{
		RuleWeights:                 DefaultRuleWeights(),
		AmountTolerancePercent:      0.01,
		TimeWindowHours:             48,
		MaxCandidates:               50,
		RequireSameCurrency:         true,
		TieBreakMargin:              0.05,
		AutoMatchThreshold:          0.80,
		NeedsReviewThreshold:        0.60,
		RejectThreshold:             0.40,
		ExcludeAlreadyMatched:       true,
		RangeAmountTolerancePercent: 0.05,
		RangeWindowHours:            72,
		DateBucket:                  BucketDay,
		Workers:                     10,
	}
}

// Validate checks the matching options and returns every problem found.
// Windows wider than MaxWindowHours are not errors; they are clamped by
// the components that use them.
func (c MatchingConfig) Validate() error {
	var errs []error
	add := func(field, reason string) {
		errs = append(errs, &ConfigurationError{Field: field, Reason: reason})
	}

	if err := ValidateWeights(c.RuleWeights); err != nil {
		errs = append(errs, err)
	}
	if c.AmountTolerancePercent < 0 || c.AmountTolerancePercent > 1 {
		add("amount_tolerance_percent", "must be within [0, 1]")
	}
	if c.RangeAmountTolerancePercent < 0 || c.RangeAmountTolerancePercent > 1 {
		add("range_amount_tolerance_percent", "must be within [0, 1]")
	}
	if c.TimeWindowHours <= 1 {
		add("time_window_hours", "must be greater than 1")
	}
	if c.RangeWindowHours <= 0 {
		add("range_window_hours", "must be positive")
	}
	if c.MaxCandidates <= 0 {
		add("max_candidates", "must be positive")
	}
	if c.TieBreakMargin < 0 || c.TieBreakMargin > 1 {
		add("tie_break_margin", "must be within [0, 1]")
	}
	for name, v := range map[string]float64{
		"auto_match_threshold":   c.AutoMatchThreshold,
		"needs_review_threshold": c.NeedsReviewThreshold,
		"reject_threshold":       c.RejectThreshold,
	} {
		if v < 0 || v > 1 {
			add(name, "must be within [0, 1]")
		}
	}
	if c.RejectThreshold > c.NeedsReviewThreshold || c.NeedsReviewThreshold > c.AutoMatchThreshold {
		add("thresholds", fmt.Sprintf("must satisfy reject (%.2f) <= needs_review (%.2f) <= auto_match (%.2f)",
			c.RejectThreshold, c.NeedsReviewThreshold, c.AutoMatchThreshold))
	}
	if !c.DateBucket.Valid() {
		add("date_bucket", fmt.Sprintf("must be %q or %q, got %q", BucketDay, BucketHour, c.DateBucket))
	}
	if c.RetrievalTimeout < 0 {
		add("retrieval_timeout", "must not be negative")
	}
	if c.Workers < 0 {
		add("workers", "must not be negative")
	}

	return errors.Join(errs...)
}

// ValidateWeights checks that every rule has a weight in [0,1], no unknown
// rule is named, and the weights sum to 1.0.
func ValidateWeights(weights map[string]float64) error {
	var errs []error
	known := make(map[string]bool, len(RuleNames))
	sum := 0.0
	for _, name := range RuleNames {
		known[name] = true
		w, ok := weights[name]
		if !ok {
			errs = append(errs, &ConfigurationError{Field: "rule_weights." + name, Reason: "is missing"})
			continue
		}
		if w < 0 || w > 1 {
			errs = append(errs, &ConfigurationError{Field: "rule_weights." + name, Reason: "must be within [0, 1]"})
		}
		sum += w
	}
	for name := range weights {
		if !known[name] {
			errs = append(errs, &ConfigurationError{Field: "rule_weights." + name, Reason: "is not a known rule"})
		}
	}
	if len(errs) == 0 && math.Abs(sum-1.0) > WeightTolerance {
		errs = append(errs, &ConfigurationError{Field: "rule_weights", Reason: fmt.Sprintf("must sum to 1.0, got %.6f", sum)})
	}
	return errors.Join(errs...)
}

// ClampWindow limits hours to MaxWindowHours.
func ClampWindow(hours float64) float64 {
	return math.Min(hours, MaxWindowHours)
}

// WorkerConfig holds bus worker settings.
type WorkerConfig struct {
	// MaxConcurrent bounds in-flight alert messages.
	MaxConcurrent int `json:"maxConcurrent" yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`    // debug, info, warn, error
	Format string `json:"format" yaml:"format" mapstructure:"format"` // json, console
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" yaml:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a single-node configuration: SQLite, in-memory
// claims and the channel bus.
func DefaultConfig() *Config {
	return &Config{
		Matching: DefaultMatchingConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./heron.db",
		},
		Claims: ClaimStoreConfig{
			Type: "memory",
			TTL:  24 * time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			MaxConcurrent: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "heron",
		},
	}
}

// ClusterConfig returns a configuration for several workers sharing
// PostgreSQL, Redis claims and NATS.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "heron",
	}
	cfg.Claims = ClaimStoreConfig{
		Type:      "redis",
		RedisAddr: "localhost:6379",
		TTL:       24 * time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
