package catalog

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/liamcoop/ruledefs/internal/logger"
	"github.com/liamcoop/ruledefs/internal/metrics"
	"github.com/liamcoop/ruledefs/rules"
)

var (
	ErrRuleSetNotFound    = errors.New("rule set not found")
	ErrRuleSetExists      = errors.New("rule set already exists")
	ErrInvalidRuleSetName = errors.New("invalid rule set name")
)

// ruleSet pairs a set's store with the cached firing order of its active rules
type ruleSet struct {
	name  string
	store rules.RuleStore
	cache rules.RulesCache
}

// Catalog manages named rule sets and imports rule documents into them
type Catalog struct {
	backend     Backend
	sets        map[string]*ruleSet
	readerOpts  []rules.ReaderOption
	checker     rules.ConditionChecker
	cacheConfig rules.CacheConfig
	metrics     *metrics.Metrics
	mu          sync.RWMutex
}

// Option configures a Catalog
type Option func(*Catalog)

// WithReaderOptions sets the options of every reader the catalog creates.
// The format passed to Import or Validate always wins.
func WithReaderOptions(opts ...rules.ReaderOption) Option {
	return func(c *Catalog) {
		c.readerOpts = opts
	}
}

// WithConditionChecker rejects imports whose conditions fail checker
func WithConditionChecker(checker rules.ConditionChecker) Option {
	return func(c *Catalog) {
		c.checker = checker
	}
}

// WithCacheConfig sets the cache configuration of every rule set
func WithCacheConfig(config rules.CacheConfig) Option {
	return func(c *Catalog) {
		c.cacheConfig = config
	}
}

// WithMetrics records imports and rejections on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) {
		c.metrics = m
	}
}

// New creates a catalog over backend. Call LoadAll to pick up existing sets.
func New(backend Backend, opts ...Option) *Catalog {
	c := &Catalog{
		backend:     backend,
		sets:        make(map[string]*ruleSet),
		cacheConfig: rules.DefaultCacheConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadAll registers every rule set known to the backend
func (c *Catalog) LoadAll() error {
	names, err := c.backend.ListRuleSets()
	if err != nil {
		return fmt.Errorf("failed to load rule sets: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range names {
		c.sets[name] = c.newRuleSet(name)
	}
	c.metrics.SetRuleSets(len(c.sets))
	logger.Info("Rule sets loaded", "count", len(names), "ruleSets", names)
	return nil
}

func (c *Catalog) newRuleSet(name string) *ruleSet {
	return &ruleSet{
		name:  name,
		store: c.backend.Store(name),
		cache: rules.NewInMemoryRulesCache(c.cacheConfig),
	}
}

// CreateRuleSet validates name and creates an empty rule set
func (c *Catalog) CreateRuleSet(name string) error {
	if err := ValidateRuleSetName(name); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.sets[name]; exists {
		return fmt.Errorf("rule set %s: %w", name, ErrRuleSetExists)
	}
	if err := c.backend.CreateRuleSet(name); err != nil {
		return err
	}

	c.sets[name] = c.newRuleSet(name)
	c.metrics.SetRuleSets(len(c.sets))
	logger.Info("Rule set created", "ruleSet", name)
	return nil
}

// DeleteRuleSet removes a rule set and every rule in it
func (c *Catalog) DeleteRuleSet(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.sets[name]; !exists {
		return fmt.Errorf("rule set %s: %w", name, ErrRuleSetNotFound)
	}
	if err := c.backend.DeleteRuleSet(name); err != nil {
		return err
	}

	delete(c.sets, name)
	c.metrics.SetRuleSets(len(c.sets))
	logger.Info("Rule set deleted", "ruleSet", name)
	return nil
}

// ListRuleSets returns the loaded rule set names, sorted
func (c *Catalog) ListRuleSets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.sets))
	for name := range c.sets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (c *Catalog) ruleSet(name string) (*ruleSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, exists := c.sets[name]
	if !exists {
		return nil, fmt.Errorf("rule set %s: %w", name, ErrRuleSetNotFound)
	}
	return set, nil
}

func (c *Catalog) reader(format rules.Format) *rules.Reader {
	opts := append(slices.Clone(c.readerOpts), rules.WithFormat(format))
	return rules.NewReader(opts...)
}

// Validate reads every rule document from src without storing anything
func (c *Catalog) Validate(src io.Reader, format rules.Format) ([]rules.RuleDefinition, error) {
	defs, err := c.reader(format).ReadAll(src)
	if err != nil {
		c.reject(err)
		return nil, err
	}
	if c.checker != nil {
		if err := rules.CheckDefinitions(c.checker, defs); err != nil {
			c.metrics.DocumentRejected(metrics.ReasonCondition)
			return nil, err
		}
	}
	return defs, nil
}

// Import reads every rule document from src and adds them to the rule set as
// active rules. Either all documents are stored or none.
func (c *Catalog) Import(name string, src io.Reader, format rules.Format) ([]*rules.Rule, error) {
	set, err := c.ruleSet(name)
	if err != nil {
		return nil, err
	}

	defs, err := c.Validate(src, format)
	if err != nil {
		logger.Warn("Rule import rejected", "ruleSet", name, "error", err)
		return nil, err
	}

	imported := make([]*rules.Rule, 0, len(defs))
	for _, def := range defs {
		imported = append(imported, &rules.Rule{
			ID:         uuid.New().String(),
			RuleSet:    name,
			Definition: def,
			Active:     true,
		})
	}

	if err := set.store.AddAll(imported); err != nil {
		logger.Error("Failed to store imported rules", "ruleSet", name, "error", err)
		return nil, fmt.Errorf("failed to store rules in %s: %w", name, err)
	}
	set.cache.Invalidate()

	c.metrics.RulesImported(name, len(imported))
	logger.Info("Rules imported", "ruleSet", name, "count", len(imported))
	return imported, nil
}

func (c *Catalog) reject(err error) {
	switch {
	case errors.Is(err, rules.ErrMalformedDocument):
		c.metrics.DocumentRejected(metrics.ReasonMalformed)
	case errors.Is(err, rules.ErrInvalidRuleDefinition):
		c.metrics.DocumentRejected(metrics.ReasonInvalid)
	}
}

// ListRules returns every rule of a set, active or not, in firing order
func (c *Catalog) ListRules(name string) ([]*rules.Rule, error) {
	set, err := c.ruleSet(name)
	if err != nil {
		return nil, err
	}
	return set.store.List()
}

// ListActiveRules returns the active rules of a set in firing order
func (c *Catalog) ListActiveRules(name string) ([]*rules.Rule, error) {
	set, err := c.ruleSet(name)
	if err != nil {
		return nil, err
	}

	if cached, ok := set.cache.Get(); ok {
		return cached, nil
	}

	gen := set.cache.Generation()
	active, err := set.store.ListActive()
	if err != nil {
		return nil, err
	}
	set.cache.Set(gen, active)
	return active, nil
}

// GetRule returns one rule of a set
func (c *Catalog) GetRule(name, id string) (*rules.Rule, error) {
	set, err := c.ruleSet(name)
	if err != nil {
		return nil, err
	}
	return set.store.Get(id)
}

// SetActive enables or disables a rule and returns the updated rule
func (c *Catalog) SetActive(name, id string, active bool) (*rules.Rule, error) {
	set, err := c.ruleSet(name)
	if err != nil {
		return nil, err
	}

	existing, err := set.store.Get(id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Active = active
	if err := set.store.Update(&updated); err != nil {
		return nil, err
	}
	set.cache.Invalidate()

	logger.Debug("Rule activation changed", "ruleSet", name, "ruleId", id, "active", active)
	return &updated, nil
}

// DeleteRule removes one rule from a set
func (c *Catalog) DeleteRule(name, id string) error {
	set, err := c.ruleSet(name)
	if err != nil {
		return err
	}

	if err := set.store.Delete(id); err != nil {
		return err
	}
	set.cache.Invalidate()

	logger.Debug("Rule deleted", "ruleSet", name, "ruleId", id)
	return nil
}
