package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/propsight/prediction-api/internal/models"
)

// MemoryStore is an in-process Store used by tests, the fixture-backed dev
// server and one-shot CLI runs. A single mutex makes every batch atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	predictions map[models.PredictionKey]*models.Prediction
	actuals     map[models.PredictionKey]models.ActualResult
	now         Clock
}

// NewMemoryStore creates an empty store. A nil clock uses time.Now.
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		predictions: make(map[models.PredictionKey]*models.Prediction),
		actuals:     make(map[models.PredictionKey]models.ActualResult),
		now:         clock,
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, p *models.Prediction) error {
	_, err := s.UpsertBatch(ctx, []*models.Prediction{p})
	return err
}

func (s *MemoryStore) UpsertBatch(ctx context.Context, preds []*models.Prediction) (int, error) {
	for _, p := range preds {
		if p == nil || !p.Key().Valid() {
			return 0, fmt.Errorf("upsert: incomplete prediction key")
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	for _, p := range preds {
		key := p.Key()
		stored := clonePrediction(p)
		if existing, ok := s.predictions[key]; ok {
			stored.CreatedAt = existing.CreatedAt
		} else {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
		s.predictions[key] = stored

		p.CreatedAt = stored.CreatedAt
		p.UpdatedAt = stored.UpdatedAt
	}
	return len(preds), nil
}

func (s *MemoryStore) Query(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*models.Prediction, 0)
	for _, p := range s.predictions {
		if filter.Matches(p) {
			out = append(out, clonePrediction(p))
		}
	}
	s.mu.RUnlock()

	sortPredictions(out)

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*models.Prediction{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, key models.PredictionKey) (*models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.predictions[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePrediction(p), nil
}

func (s *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, p := range s.predictions {
		if p.GameDate.Before(cutoff) {
			delete(s.predictions, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Sports(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, p := range s.predictions {
		if !seen[p.Sport] {
			seen[p.Sport] = true
			out = append(out, p.Sport)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) GameDates(ctx context.Context, sport string) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[time.Time]bool)
	out := make([]time.Time, 0)
	for _, p := range s.predictions {
		if sport != "" && p.Sport != sport {
			continue
		}
		day := p.GameDate.UTC().Truncate(24 * time.Hour)
		if !seen[day] {
			seen[day] = true
			out = append(out, day)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) UpsertActuals(ctx context.Context, actuals []models.ActualResult) (int, error) {
	for _, a := range actuals {
		if !a.Key().Valid() {
			return 0, fmt.Errorf("upsert actuals: incomplete key %q", a.Key())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	for _, a := range actuals {
		if existing, ok := s.actuals[a.Key()]; ok {
			a.CreatedAt = existing.CreatedAt
		} else {
			a.CreatedAt = now
		}
		s.actuals[a.Key()] = a
	}
	return len(actuals), nil
}

func (s *MemoryStore) ActualsFor(ctx context.Context, keys []models.PredictionKey) ([]models.ActualResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ActualResult, 0, len(keys))
	for _, key := range keys {
		if a, ok := s.actuals[key]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) PendingGames(ctx context.Context, sport string, before time.Time) ([]models.PendingGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reported := make(map[string]bool)
	for _, a := range s.actuals {
		reported[a.GameID] = true
	}

	seen := make(map[string]bool)
	var out []models.PendingGame
	for _, p := range s.predictions {
		if sport != "" && p.Sport != sport {
			continue
		}
		if !p.GameDate.Before(before) || reported[p.GameID] || seen[p.GameID] {
			continue
		}
		seen[p.GameID] = true
		out = append(out, models.PendingGame{Sport: p.Sport, GameID: p.GameID, GameDate: p.GameDate})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GameDate.Equal(out[j].GameDate) {
			return out[i].GameDate.Before(out[j].GameDate)
		}
		return out[i].GameID < out[j].GameID
	})
	return out, nil
}

// Len returns the number of stored predictions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.predictions)
}
