package leaderboard

import (
	"context"

	"github.com/DoyleJ11/live-leaderboard/pkg/types"
)

// Store is the persistence contract the Service consumes. Implementations
// return ErrNotFound and ErrDuplicateName (possibly wrapped) for those
// conditions and assign ID, CreatedAt and UpdatedAt themselves.
type Store interface {
	// Find returns every team, score descending, ties by creation order.
	Find(ctx context.Context) ([]types.Team, error)
	FindByName(ctx context.Context, name string) (types.Team, error)
	FindByID(ctx context.Context, id string) (types.Team, error)
	Count(ctx context.Context) (int64, error)
	InsertMany(ctx context.Context, teams []types.Team) ([]types.Team, error)
	// IncrementScore adds delta to the named team's score in one step.
	IncrementScore(ctx context.Context, name string, delta int) (types.Team, error)
	// Save overwrites name, company name and score of the team with t.ID.
	Save(ctx context.Context, t types.Team) (types.Team, error)
	ResetScores(ctx context.Context) error
	DeleteByID(ctx context.Context, id string) (types.Team, error)
}

// Publisher delivers one event to every connected push channel.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}
