package examplestore

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// MemoryStore is a thread-safe in-memory store, optionally persisted to a JSON file.
type MemoryStore struct {
	clock clock.Clock

	mu       sync.RWMutex
	examples []*Example
	byID     map[string]*Example
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock replaces the clock used for CreatedAt and LastUpdated.
func WithClock(clk clock.Clock) Option {
	return func(s *MemoryStore) { s.clock = clk }
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		clock: clock.New(),
		byID:  map[string]*Example{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores ex, assigning an id and CreatedAt when unset, and returns the stored copy.
func (s *MemoryStore) Add(ex Example) *Example {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(ex)
}

func (s *MemoryStore) addLocked(ex Example) *Example {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = s.clock.Now().UTC()
	}
	stored := &ex
	if _, ok := s.byID[ex.ID]; ok {
		_, idx, _ := lo.FindIndexOf(s.examples, func(old *Example) bool { return old.ID == ex.ID })
		s.examples[idx] = stored
	} else {
		s.examples = append(s.examples, stored)
	}
	s.byID[ex.ID] = stored
	return stored
}

// Submit validates sub and stores it.
func (s *MemoryStore) Submit(sub Submission) (*Example, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	return s.Add(*sub.example()), nil
}

// Get returns the example with id.
func (s *MemoryStore) Get(id string) (*Example, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.byID[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return ex, nil
}

// List returns up to limit examples in insertion order. A limit of zero or less returns all.
func (s *MemoryStore) List(limit int) []*Example {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.examples) {
		limit = len(s.examples)
	}
	return append([]*Example{}, s.examples[:limit]...)
}

// Len returns the number of stored examples.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.examples)
}

// Similar returns examples within maxDistance of pos, most similar first, at most limit of them.
// An empty objectType matches every type. Non-positive maxDistance and limit take their defaults.
func (s *MemoryStore) Similar(objectType string, pos r3.Vector, maxDistance float64, limit int) []Match {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}

	s.mu.RLock()
	candidates := lo.Filter(s.examples, func(ex *Example, _ int) bool {
		return objectType == "" || ex.ObjectType == objectType
	})
	s.mu.RUnlock()

	matches := make([]Match, 0, len(candidates))
	for _, ex := range candidates {
		d := ex.ObjectPosition.Sub(pos).Norm()
		if d > maxDistance {
			continue
		}
		matches = append(matches, Match{Example: ex, Distance: d, Similarity: 1 - d/maxDistance})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Nearest returns the closest example of objectType within maxDistance of pos.
func (s *MemoryStore) Nearest(objectType string, pos r3.Vector, maxDistance float64) (*Example, bool) {
	matches := s.Similar(objectType, pos, maxDistance, 1)
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0].Example, true
}

// Stats counts examples by type and over a 5 cm X/Z grid.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Total:       len(s.examples),
		ByType:      lo.CountValuesBy(s.examples, func(ex *Example) string { return ex.ObjectType }),
		Heatmap:     []HeatmapCell{},
		LastUpdated: s.clock.Now().UTC(),
	}
	// Cells are keyed by integer index so coordinates rounding to -0 share the 0 cell.
	type cellIndex struct{ x, z int }
	cells := map[cellIndex]*HeatmapCell{}
	for _, ex := range s.examples {
		idx := cellIndex{
			x: int(math.Round(ex.ObjectPosition.X / HeatmapGridSize)),
			z: int(math.Round(ex.ObjectPosition.Z / HeatmapGridSize)),
		}
		cell, ok := cells[idx]
		if !ok {
			cell = &HeatmapCell{X: float64(idx.x) * HeatmapGridSize, Z: float64(idx.z) * HeatmapGridSize}
			cells[idx] = cell
		}
		cell.Count++
	}
	for _, key := range lo.Keys(cells) {
		st.Heatmap = append(st.Heatmap, *cells[key])
	}
	sort.Slice(st.Heatmap, func(i, j int) bool {
		a, b := st.Heatmap[i], st.Heatmap[j]
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return st
}

type fileFormat struct {
	Examples []*Example `json:"examples"`
}

// LoadFile adds every example in the JSON file at path. Examples with an id already in the store
// replace the stored one.
func (s *MemoryStore) LoadFile(path string) error {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading example file")
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Wrapf(err, "decoding example file %s", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range f.Examples {
		if ex != nil {
			s.addLocked(*ex)
		}
	}
	return nil
}

// SaveFile writes every example to path as JSON.
func (s *MemoryStore) SaveFile(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(fileFormat{Examples: s.examples}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "encoding examples")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o600), "writing example file")
}

// NewFromFile returns a store loaded from path.
func NewFromFile(path string, opts ...Option) (*MemoryStore, error) {
	s := NewMemoryStore(opts...)
	if err := s.LoadFile(path); err != nil {
		return nil, err
	}
	return s, nil
}
