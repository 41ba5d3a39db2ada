package portable

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/events"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/repository/memory"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage/local"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type env struct {
	repo      *memory.ChallengesRepository
	store     *local.LocalStorage
	publisher *recordingPublisher
	importer  *Importer
	exporter  *Exporter
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store, err := local.NewLocalStorage(t.TempDir(), "http://ctf.local")
	require.NoError(t, err)

	e := &env{
		repo:      memory.NewChallengesRepository(),
		store:     store,
		publisher: &recordingPublisher{},
	}
	e.importer = NewImporter(e.repo, e.store, e.publisher, zerolog.Nop())
	e.exporter = NewExporter(e.repo, e.store, zerolog.Nop())
	return e
}
