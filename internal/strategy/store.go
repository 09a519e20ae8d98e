package strategy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stockrun/stockrun/internal/models"
)

// ErrNotFound is returned for unknown strategy ids and when no default
// strategy exists.
var ErrNotFound = errors.New("strategy not found")

// Store is the read/write contract for strategy persistence. The screening
// core only reads; management surfaces also write.
type Store interface {
	Get(ctx context.Context, id string) (*models.Strategy, error)
	GetDefault(ctx context.Context) (*models.Strategy, error)
	List(ctx context.Context) ([]*models.Strategy, error)
	Save(ctx context.Context, strat *models.Strategy) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process store, optionally seeded from a YAML file.
// Save enforces the single-default invariant by clearing the flag from any
// other strategy.
type MemoryStore struct {
	mu         sync.RWMutex
	strategies map[string]*models.Strategy
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{strategies: make(map[string]*models.Strategy)}
}

// NewMemoryStoreFromFile seeds a store from a YAML strategy list.
func NewMemoryStoreFromFile(path string) (*MemoryStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strategy file: %w", err)
	}
	var doc struct {
		Strategies []*models.Strategy `yaml:"strategies"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing strategy file %s: %w", path, err)
	}
	store := NewMemoryStore()
	for _, strat := range doc.Strategies {
		if err := store.Save(context.Background(), strat); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	strat, ok := m.strategies[id]
	if !ok {
		return nil, fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	return cloneStrategy(strat), nil
}

func (m *MemoryStore) GetDefault(_ context.Context) (*models.Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, strat := range m.strategies {
		if strat.Default {
			return cloneStrategy(strat), nil
		}
	}
	return nil, fmt.Errorf("no default strategy: %w", ErrNotFound)
}

func (m *MemoryStore) List(_ context.Context) ([]*models.Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Strategy, 0, len(m.strategies))
	for _, strat := range m.strategies {
		out = append(out, cloneStrategy(strat))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, strat *models.Strategy) error {
	if err := strat.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := cloneStrategy(strat)
	if existing, ok := m.strategies[saved.ID]; ok {
		saved.Version = existing.Version + 1
		saved.CreatedAt = existing.CreatedAt
	} else {
		saved.Version = 1
		saved.CreatedAt = time.Now()
	}
	saved.UpdatedAt = time.Now()

	if saved.Default {
		for _, other := range m.strategies {
			other.Default = false
		}
	}
	m.strategies[saved.ID] = saved
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strategies[id]; !ok {
		return fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	delete(m.strategies, id)
	return nil
}

func cloneStrategy(s *models.Strategy) *models.Strategy {
	out := *s
	out.Conditions = make([]models.Condition, len(s.Conditions))
	copy(out.Conditions, s.Conditions)
	return &out
}

// DefaultMomentum is the stock default strategy: Banker or Smart Money
// accumulation with a Green trend color.
func DefaultMomentum() *models.Strategy {
	return &models.Strategy{
		ID:          "default-momentum",
		Name:        "Default Momentum",
		Description: "Banker/Smart Money accumulation confirmed by a Green trend color",
		Default:     true,
		Conditions: []models.Condition{
			{
				Indicator: "mcdx",
				Field:     "signal",
				Operator:  models.OpIn,
				Value:     []any{"Banker", "Smart Money"},
			},
			{
				Indicator: "xtrender",
				Field:     "color",
				Operator:  models.OpEqual,
				Value:     "Green",
			},
		},
	}
}
