package leaderboard_test

import (
	"context"
	"testing"

	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	ctx := context.Background()
	svc, _, rec := newService(t)

	res, err := svc.Apply(ctx, leaderboard.Command{
		Type: leaderboard.CmdAddTeam,
		Team: types.TeamInput{Name: "A", CompanyName: "X", Score: "3"},
	})
	require.NoError(t, err)
	id := res.Team.ID

	_, err = svc.Apply(ctx, leaderboard.Command{Type: leaderboard.CmdUpdateScore, TeamName: "A", Points: "-1"})
	require.NoError(t, err)

	res, err = svc.Apply(ctx, leaderboard.Command{
		Type:   leaderboard.CmdUpdateTeam,
		TeamID: id,
		Patch:  leaderboard.Patch{CompanyName: leaderboard.Some("Y")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Y", res.Team.CompanyName)
	assert.Equal(t, 2, res.Team.Score)

	_, err = svc.Apply(ctx, leaderboard.Command{Type: leaderboard.CmdDeleteTeam, TeamID: id})
	require.NoError(t, err)

	var got []string
	for _, ev := range rec.all() {
		got = append(got, ev.Event)
	}
	assert.Equal(t, []string{
		types.EventScoreUpdate,
		types.EventScoreUpdate,
		types.EventTeamUpdated,
		types.EventTeamDeleted,
	}, got)

	_, err = svc.Apply(ctx, leaderboard.Command{Type: "resetAll"})
	assert.ErrorIs(t, err, leaderboard.ErrUnsupportedCommand)
	assert.Equal(t, leaderboard.KindValidation, leaderboard.KindOf(err))
}
