package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/sprintdeck/pokerd/internal/core"
	"github.com/sprintdeck/pokerd/internal/domain"
)

// Room codes are human-typeable: fixed length, uppercase alphanumeric,
// normalized to uppercase on input.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var errCodeSpaceExhausted = errors.New("could not allocate a unique room code")

// Registry creates rooms, resolves coordinators by code and reclaims
// rooms nobody can come back to.
type Registry struct {
	clock      clockwork.Clock
	grace      time.Duration
	sweepEvery time.Duration
	codeLen    int
	dir        *SessionDirectory

	mu    sync.RWMutex
	rooms map[string]*core.Coordinator
	sink  core.EventSink
}

func NewRegistry(dir *SessionDirectory, clock clockwork.Clock, grace, sweepEvery time.Duration, codeLen int) *Registry {
	return &Registry{
		clock:      clock,
		grace:      grace,
		sweepEvery: sweepEvery,
		codeLen:    codeLen,
		dir:        dir,
		rooms:      make(map[string]*core.Coordinator),
	}
}

// SetSink installs the broadcast sink new coordinators publish their
// timer-driven events to. Wired once at startup, before any room exists.
func (g *Registry) SetSink(sink core.EventSink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sink = sink
}

// CreateRoom allocates a collision-checked code and starts the room's
// coordinator. The creator joins through the coordinator afterwards, so
// the room is briefly empty but within its grace window.
func (g *Registry) CreateRoom(deck domain.DeckType) (*core.Coordinator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	code, err := g.newCode()
	if err != nil {
		return nil, err
	}
	room := domain.NewRoom(code, deck, g.clock.Now())
	coord := core.NewCoordinator(room, g.clock, g.grace, g.sink)
	g.rooms[code] = coord
	log.Info().Str("module", "app.registry").Str("room", code).Str("deck", string(deck)).Msg("room created")
	return coord, nil
}

func (g *Registry) newCode() (string, error) {
	buf := make([]byte, g.codeLen)
	for attempt := 0; attempt < 100; attempt++ {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("room code entropy: %w", err)
		}
		b := make([]byte, g.codeLen)
		for i := range buf {
			b[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
		}
		code := string(b)
		if _, taken := g.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", errCodeSpaceExhausted
}

// Get resolves a coordinator by room code, case-insensitively.
func (g *Registry) Get(code string) (*core.Coordinator, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	coord, ok := g.rooms[strings.ToUpper(code)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return coord, nil
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Run drives the idle-room sweep until ctx is canceled.
func (g *Registry) Run(ctx context.Context) {
	ticker := g.clock.NewTicker(g.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			g.Sweep()
		}
	}
}

// Sweep destroys rooms with zero connected users and no retained
// identities older than the grace period. Expirable is answered through
// the room's own actor, so a sweep never destroys a room with an
// operation in flight: the close itself queues behind it.
func (g *Registry) Sweep() {
	g.mu.RLock()
	candidates := make([]*core.Coordinator, 0, len(g.rooms))
	for _, coord := range g.rooms {
		candidates = append(candidates, coord)
	}
	g.mu.RUnlock()

	for _, coord := range candidates {
		code := coord.Code()
		if !coord.Expirable() || g.dir.HasRetained(code) {
			continue
		}
		coord.Close()
		g.mu.Lock()
		delete(g.rooms, code)
		g.mu.Unlock()
		log.Info().Str("module", "app.registry").Str("room", code).Msg("idle room reclaimed")
	}
}
