package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"github.com/google/uuid"
)

// Memory keeps teams in insertion order. It backs tests and the
// STORE_DRIVER=memory mode.
type Memory struct {
	mu    sync.RWMutex
	teams []types.Team
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Find(ctx context.Context) ([]types.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Team, len(m.teams))
	copy(out, m.teams)
	types.SortByScore(out)
	return out, nil
}

func (m *Memory) FindByName(ctx context.Context, name string) (types.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexByName(name); i >= 0 {
		return m.teams[i], nil
	}
	return types.Team{}, leaderboard.ErrNotFound
}

func (m *Memory) FindByID(ctx context.Context, id string) (types.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexByID(id); i >= 0 {
		return m.teams[i], nil
	}
	return types.Team{}, leaderboard.ErrNotFound
}

func (m *Memory) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.teams)), nil
}

func (m *Memory) InsertMany(ctx context.Context, teams []types.Team) ([]types.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(teams))
	for _, t := range teams {
		if seen[t.Name] || m.indexByName(t.Name) >= 0 {
			return nil, fmt.Errorf("insert %q: %w", t.Name, leaderboard.ErrDuplicateName)
		}
		seen[t.Name] = true
	}

	now := m.now()
	created := make([]types.Team, 0, len(teams))
	for _, t := range teams {
		t.ID = uuid.NewString()
		t.CreatedAt = now
		t.UpdatedAt = now
		m.teams = append(m.teams, t)
		created = append(created, t)
	}
	return created, nil
}

func (m *Memory) IncrementScore(ctx context.Context, name string, delta int) (types.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexByName(name)
	if i < 0 {
		return types.Team{}, leaderboard.ErrNotFound
	}
	m.teams[i].Score += delta
	m.teams[i].UpdatedAt = m.now()
	return m.teams[i], nil
}

func (m *Memory) Save(ctx context.Context, t types.Team) (types.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexByID(t.ID)
	if i < 0 {
		return types.Team{}, leaderboard.ErrNotFound
	}
	if j := m.indexByName(t.Name); j >= 0 && j != i {
		return types.Team{}, fmt.Errorf("rename to %q: %w", t.Name, leaderboard.ErrDuplicateName)
	}
	cur := &m.teams[i]
	cur.Name = t.Name
	cur.CompanyName = t.CompanyName
	cur.Score = t.Score
	cur.UpdatedAt = m.now()
	return *cur, nil
}

func (m *Memory) ResetScores(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for i := range m.teams {
		m.teams[i].Score = 0
		m.teams[i].UpdatedAt = now
	}
	return nil
}

func (m *Memory) DeleteByID(ctx context.Context, id string) (types.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexByID(id)
	if i < 0 {
		return types.Team{}, leaderboard.ErrNotFound
	}
	t := m.teams[i]
	m.teams = append(m.teams[:i], m.teams[i+1:]...)
	return t, nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) indexByName(name string) int {
	for i := range m.teams {
		if m.teams[i].Name == name {
			return i
		}
	}
	return -1
}

func (m *Memory) indexByID(id string) int {
	for i := range m.teams {
		if m.teams[i].ID == id {
			return i
		}
	}
	return -1
}
