package leaderboard

import (
	"context"

	"github.com/DoyleJ11/live-leaderboard/pkg/types"
)

type CommandType string

const (
	CmdUpdateScore CommandType = types.EventUpdateScore
	CmdAddTeam     CommandType = types.EventAddTeam
	CmdDeleteTeam  CommandType = types.EventDeleteTeam
	CmdUpdateTeam  CommandType = types.EventUpdateTeam
)

/*
	CmdUpdateScore -> IncrementScore -> scoreUpdate {teams, updatedTeam}
	CmdAddTeam     -> InsertMany     -> scoreUpdate {teams, updatedTeam}
	CmdDeleteTeam  -> DeleteByID     -> teamDeleted {teams, deletedTeam}
	CmdUpdateTeam  -> Save           -> teamUpdated {teams, updatedTeam}
*/

// Command is a mutation that arrived over the push channel.
type Command struct {
	Type CommandType

	TeamName string // updateScore
	Points   any    // updateScore

	Team types.TeamInput // addTeam

	TeamID string // deleteTeam, updateTeam
	Patch  Patch  // updateTeam
}

// Apply runs cmd against the service. Publishing happens inside the
// service, so a nil error means every connected channel has been sent
// the new ranked list.
func (s *Service) Apply(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Type {
	case CmdUpdateScore:
		return s.UpdateScore(ctx, cmd.TeamName, cmd.Points)
	case CmdAddTeam:
		return s.AddTeam(ctx, cmd.Team)
	case CmdDeleteTeam:
		return s.DeleteTeam(ctx, cmd.TeamID)
	case CmdUpdateTeam:
		return s.UpdateDetails(ctx, cmd.TeamID, cmd.Patch)
	default:
		return Result{}, ErrUnsupportedCommand
	}
}
