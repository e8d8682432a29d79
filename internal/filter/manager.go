package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"ContentFeed/internal/domain"
	"ContentFeed/internal/ports"
)

// Manager owns the process-wide active rule set. Readers get an immutable
// compiled snapshot; writers validate, persist, then swap.
type Manager struct {
	store  ports.FilterConfigStore
	logger *slog.Logger

	active  atomic.Pointer[Compiled]
	writeMu sync.Mutex
}

// NewManager seeds the manager with the default rules. Call Init to load
// the persisted set.
func NewManager(store ports.FilterConfigStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{store: store, logger: logger}
	m.active.Store(Compile(DefaultRules(), logger))
	return m
}

// Init loads the stored rule set, or persists the defaults when none exists.
func (m *Manager) Init(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	stored, err := m.store.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("load filter rules: %w", err)
	}

	if stored == nil {
		if err := m.store.SaveRules(ctx, DefaultRules()); err != nil {
			return fmt.Errorf("save default filter rules: %w", err)
		}
		m.logger.Info("default filter rules saved")
		return nil
	}

	rules, err := UpdateFrom(*stored).Validate()
	if err != nil {
		m.logger.Warn("stored filter rules invalid, using defaults", "error", err)
		return nil
	}
	m.active.Store(Compile(rules, m.logger))
	m.logger.Info("filter rules loaded from store")
	return nil
}

// Active returns the compiled rule set used for evaluation.
func (m *Manager) Active() *Compiled {
	return m.active.Load()
}

// Current returns a copy of the active rule set.
func (m *Manager) Current() domain.FilterRuleSet {
	return m.Active().Rules()
}

// Update validates and installs a new rule set. On any error the active
// rule set is left unchanged.
func (m *Manager) Update(ctx context.Context, update RuleSetUpdate) (domain.FilterRuleSet, error) {
	rules, err := update.Validate()
	if err != nil {
		return domain.FilterRuleSet{}, err
	}
	if err := m.install(ctx, rules); err != nil {
		return domain.FilterRuleSet{}, err
	}
	m.logger.Info("filter rules updated",
		"min_title_length", rules.MinTitleLength,
		"max_title_length", rules.MaxTitleLength,
		"max_age_hours", rules.MaxAgeHours,
		"exclude", len(rules.ExcludeKeywords),
		"include", len(rules.IncludeKeywords),
		"spam", len(rules.SpamIndicators),
	)
	return rules.Clone(), nil
}

// Reset restores and persists the default rule set.
func (m *Manager) Reset(ctx context.Context) (domain.FilterRuleSet, error) {
	rules := DefaultRules()
	if err := m.install(ctx, rules); err != nil {
		return domain.FilterRuleSet{}, err
	}
	m.logger.Info("filter rules reset to defaults")
	return rules, nil
}

func (m *Manager) install(ctx context.Context, rules domain.FilterRuleSet) error {
	compiled := Compile(rules, m.logger)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.store != nil {
		if err := m.store.SaveRules(ctx, rules); err != nil {
			return fmt.Errorf("save filter rules: %w", err)
		}
	}
	m.active.Store(compiled)
	return nil
}

// IsValidation reports whether err came from rule validation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRuleSet)
}
