package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"go.uber.org/zap"
)

const (
	MsgInitialized        = "Teams initialized successfully"
	MsgAlreadyInitialized = "Teams already initialized"
	MsgTeamAdded          = "Team added successfully"
	MsgScoreUpdated       = "Team score updated successfully"
	MsgScoresReset        = "All team scores reset to zero"
	MsgTeamUpdated        = "Team details updated successfully"
	MsgTeamDeleted        = "Team deleted successfully"
)

// Optional marks a field the caller explicitly supplied.
type Optional[T any] struct {
	Value T
	Set   bool
}

func Some[T any](v T) Optional[T] { return Optional[T]{Value: v, Set: true} }

// Patch is a partial update of a team. Only fields with Set are written;
// a set Score is coerced, so an explicit 0 (or garbage) writes 0.
type Patch struct {
	Name        Optional[string]
	CompanyName Optional[string]
	Score       Optional[any]
}

// PatchFromRequest applies the presence rules: empty strings count
// as absent, any score value (including 0) counts as present.
func PatchFromRequest(req types.UpdateTeamRequest) Patch {
	var p Patch
	if req.Name != nil && *req.Name != "" {
		p.Name = Some(*req.Name)
	}
	if req.CompanyName != nil && *req.CompanyName != "" {
		p.CompanyName = Some(*req.CompanyName)
	}
	if req.Score != nil {
		p.Score = Some(req.Score)
	}
	return p
}

// Result is what every operation hands back to its transport.
type Result struct {
	Message string
	Team    types.Team
	Teams   []types.Team
	Created bool
}

// Service validates and applies mutations against the Store and publishes
// the fresh ranked list after each successful one.
type Service struct {
	store  Store
	pub    Publisher
	logger *zap.Logger

	// held across write, re-read and publish so broadcasts leave in the
	// order their mutations completed
	mu sync.Mutex
}

func NewService(store Store, pub Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, pub: pub, logger: logger}
}

func (s *Service) ListRanked(ctx context.Context) ([]types.Team, error) {
	teams, err := s.store.Find(ctx)
	if err != nil {
		return nil, storeErr("find", err)
	}
	if teams == nil {
		teams = []types.Team{}
	}
	return teams, nil
}

func (s *Service) Initialize(ctx context.Context, inputs []types.TeamInput) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.store.Count(ctx)
	if err != nil {
		return Result{}, storeErr("count", err)
	}
	if n > 0 {
		teams, err := s.ListRanked(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Message: MsgAlreadyInitialized, Teams: teams}, nil
	}

	seen := make(map[string]bool, len(inputs))
	rows := make([]types.Team, 0, len(inputs))
	for i, in := range inputs {
		name, company, err := requireNames(in.Name, in.CompanyName)
		if err != nil {
			return Result{}, invalid(fmt.Sprintf("teams[%d]", i), "Name and company name are required")
		}
		if seen[name] {
			return Result{}, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		seen[name] = true
		rows = append(rows, types.Team{Name: name, CompanyName: company, Score: Coerce(in.Score)})
	}

	if len(rows) > 0 {
		if _, err := s.store.InsertMany(ctx, rows); err != nil {
			return Result{}, storeErr("insert", err)
		}
	}

	teams, err := s.ListRanked(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(rows) > 0 {
		s.logger.Info("teams initialized", zap.Int("count", len(rows)))
		s.publish(ctx, types.EventScoreUpdate, types.ScoreUpdate{Teams: teams})
	}
	return Result{Message: MsgInitialized, Teams: teams, Created: true}, nil
}

func (s *Service) AddTeam(ctx context.Context, in types.TeamInput) (Result, error) {
	name, company, err := requireNames(in.Name, in.CompanyName)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.FindByName(ctx, name); err == nil {
		return Result{}, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	} else if !errors.Is(err, ErrNotFound) {
		return Result{}, storeErr("find by name", err)
	}

	created, err := s.store.InsertMany(ctx, []types.Team{{Name: name, CompanyName: company, Score: Coerce(in.Score)}})
	if err != nil {
		return Result{}, storeErr("insert", err)
	}
	if len(created) != 1 {
		return Result{}, &StoreError{Op: "insert", Err: fmt.Errorf("expected 1 inserted team, got %d", len(created))}
	}
	team := created[0]

	teams, err := s.ListRanked(ctx)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("team added", zap.String("team", team.Name), zap.String("company", team.CompanyName), zap.Int("score", team.Score))
	s.publish(ctx, types.EventScoreUpdate, types.ScoreUpdate{Teams: teams, UpdatedTeam: &team})
	return Result{Message: MsgTeamAdded, Team: team, Teams: teams, Created: true}, nil
}

// UpdateScore adds points (a signed value, already negated for deductions)
// to the named team. Unparseable points add 0.
func (s *Service) UpdateScore(ctx context.Context, teamName string, points any) (Result, error) {
	if teamName == "" || points == nil {
		return Result{}, invalid("teamName", "Team name and points are required")
	}
	delta := Coerce(points)

	s.mu.Lock()
	defer s.mu.Unlock()

	team, err := s.store.IncrementScore(ctx, teamName, delta)
	if err != nil {
		return Result{}, storeErr("increment score", err)
	}

	teams, err := s.ListRanked(ctx)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("score updated", zap.String("team", team.Name), zap.Int("delta", delta), zap.Int("score", team.Score))
	s.publish(ctx, types.EventScoreUpdate, types.ScoreUpdate{Teams: teams, UpdatedTeam: &team})
	return Result{Message: MsgScoreUpdated, Team: team, Teams: teams}, nil
}

func (s *Service) UpdateDetails(ctx context.Context, id string, p Patch) (Result, error) {
	if id == "" {
		return Result{}, invalid("teamId", "Team ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	team, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Result{}, storeErr("find by id", err)
	}

	if p.Name.Set {
		name := strings.TrimSpace(p.Name.Value)
		if name == "" {
			return Result{}, invalid("name", "Name must not be blank")
		}
		if name != team.Name {
			if _, err := s.store.FindByName(ctx, name); err == nil {
				return Result{}, fmt.Errorf("%w: %q", ErrDuplicateName, name)
			} else if !errors.Is(err, ErrNotFound) {
				return Result{}, storeErr("find by name", err)
			}
		}
		team.Name = name
	}
	if p.CompanyName.Set {
		company := strings.TrimSpace(p.CompanyName.Value)
		if company == "" {
			return Result{}, invalid("companyName", "Company name must not be blank")
		}
		team.CompanyName = company
	}
	if p.Score.Set {
		team.Score = Coerce(p.Score.Value)
	}

	saved, err := s.store.Save(ctx, team)
	if err != nil {
		return Result{}, storeErr("save", err)
	}

	teams, err := s.ListRanked(ctx)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("team updated", zap.String("id", saved.ID), zap.String("team", saved.Name), zap.Int("score", saved.Score))
	s.publish(ctx, types.EventTeamUpdated, types.TeamUpdated{Teams: teams, UpdatedTeam: saved})
	return Result{Message: MsgTeamUpdated, Team: saved, Teams: teams}, nil
}

func (s *Service) ResetAll(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ResetScores(ctx); err != nil {
		return Result{}, storeErr("reset scores", err)
	}

	teams, err := s.ListRanked(ctx)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("scores reset", zap.Int("teams", len(teams)))
	s.publish(ctx, types.EventScoreUpdate, types.ScoreUpdate{Teams: teams})
	return Result{Message: MsgScoresReset, Teams: teams}, nil
}

func (s *Service) DeleteTeam(ctx context.Context, id string) (Result, error) {
	if id == "" {
		return Result{}, invalid("teamId", "Team ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		return Result{}, storeErr("delete", err)
	}

	teams, err := s.ListRanked(ctx)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("team deleted", zap.String("id", deleted.ID), zap.String("team", deleted.Name))
	s.publish(ctx, types.EventTeamDeleted, types.TeamDeleted{Teams: teams, DeletedTeam: deleted})
	return Result{Message: MsgTeamDeleted, Team: deleted, Teams: teams}, nil
}

// publish must not be skipped because the caller gave up waiting; the
// write already happened.
func (s *Service) publish(ctx context.Context, event string, payload any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		s.logger.Warn("publish failed", zap.String("event", event), zap.Error(err))
	}
}

func requireNames(name, company string) (string, string, error) {
	name = strings.TrimSpace(name)
	company = strings.TrimSpace(company)
	if name == "" || company == "" {
		return "", "", invalid("name", "Name and company name are required")
	}
	return name, company, nil
}
