package repository

import (
	"context"
	"errors"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/domain"
)

var (
	ErrNotFound  = errors.New("challenge not found")
	ErrDuplicate = errors.New("challenge already exists")
)

// Challenges stores challenges together with their flags, tags and files.
type Challenges interface {
	GetByName(ctx context.Context, name string) (*domain.Challenge, error)
	Create(ctx context.Context, c *domain.Challenge) error
	// Update replaces every stored field of c, children included.
	Update(ctx context.Context, c *domain.Challenge) error
	List(ctx context.Context) ([]domain.Challenge, error)
}
