package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/domain"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/repository"
)

// ChallengesRepository keeps challenges in process memory.
type ChallengesRepository struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Challenge
	byName map[string]string
}

func NewChallengesRepository() *ChallengesRepository {
	return &ChallengesRepository{
		byID:   make(map[string]*domain.Challenge),
		byName: make(map[string]string),
	}
}

func (r *ChallengesRepository) GetByName(ctx context.Context, name string) (*domain.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *ChallengesRepository) Create(ctx context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[c.Name]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := r.byID[c.ID]; ok {
		return repository.ErrDuplicate
	}

	r.byID[c.ID] = clone(c)
	r.byName[c.Name] = c.ID
	return nil
}

func (r *ChallengesRepository) Update(ctx context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.byID[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if id, taken := r.byName[c.Name]; taken && id != c.ID {
		return repository.ErrDuplicate
	}

	delete(r.byName, old.Name)
	r.byID[c.ID] = clone(c)
	r.byName[c.Name] = c.ID
	return nil
}

func (r *ChallengesRepository) List(ctx context.Context) ([]domain.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Challenge, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, *clone(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func clone(c *domain.Challenge) *domain.Challenge {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	cp.Flags = append([]domain.Flag(nil), c.Flags...)
	cp.Files = append([]domain.ChallengeFile(nil), c.Files...)
	return &cp
}
