package client

import (
	"sync"
	"time"

	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"github.com/jonboulle/clockwork"
)

// HighlightDuration is how long the last touched team stays highlighted.
const HighlightDuration = 2 * time.Second

type Movement string

const (
	MovementNone Movement = "none"
	MovementUp   Movement = "up"
	MovementDown Movement = "down"
)

// Board is a viewer's local copy of the leaderboard. It is only ever
// replaced wholesale with what the server sent; it never merges.
type Board struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	teams    []types.Team
	movement map[string]Movement
	loaded   bool

	lastUpdated    *types.Team
	highlighted    string
	highlightUntil time.Time
}

func NewBoard(clock clockwork.Clock) *Board {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Board{clock: clock, movement: map[string]Movement{}}
}

// Replace installs a new snapshot. updated, when set, is the team the
// change was about; it gets highlighted for HighlightDuration.
func (b *Board) Replace(teams []types.Team, updated *types.Team) {
	next := make([]types.Team, len(teams))
	copy(next, teams)
	types.SortByScore(next)

	b.mu.Lock()
	defer b.mu.Unlock()

	prev := types.IndexByName(b.teams)
	movement := make(map[string]Movement, len(next))
	for rank, t := range next {
		old, ok := prev[t.Name]
		switch {
		case !ok || old == rank:
			movement[t.Name] = MovementNone
		case rank < old:
			movement[t.Name] = MovementUp
		default:
			movement[t.Name] = MovementDown
		}
	}

	b.teams = next
	b.movement = movement
	b.loaded = true

	if updated != nil {
		u := *updated
		b.lastUpdated = &u
		b.highlighted = u.Name
		b.highlightUntil = b.clock.Now().Add(HighlightDuration)
	}
}

func (b *Board) Teams() []types.Team {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Team, len(b.teams))
	copy(out, b.teams)
	return out
}

// Top returns at most n leading teams.
func (b *Board) Top(n int) []types.Team {
	teams := b.Teams()
	if n >= 0 && n < len(teams) {
		teams = teams[:n]
	}
	return teams
}

func (b *Board) Movement(name string) Movement {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if m, ok := b.movement[name]; ok {
		return m
	}
	return MovementNone
}

// Highlighted is the name of the team inside its highlight window, or "".
func (b *Board) Highlighted() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.highlighted == "" || !b.clock.Now().Before(b.highlightUntil) {
		return ""
	}
	return b.highlighted
}

func (b *Board) LastUpdated() (types.Team, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastUpdated == nil {
		return types.Team{}, false
	}
	return *b.lastUpdated, true
}

// Loaded reports whether any snapshot has been installed yet.
func (b *Board) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}
