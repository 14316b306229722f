package types

import (
	"sort"
	"time"
)

// Team is one leaderboard row as it travels over the wire.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CompanyName string    `json:"companyName"`
	Score       int       `json:"score"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TeamInput is a team as submitted by a caller. Score is the raw value
// (number or numeric string) and is coerced server side.
type TeamInput struct {
	Name        string `json:"name"`
	CompanyName string `json:"companyName"`
	Score       any    `json:"score,omitempty"`
}

// SortByScore orders teams by score descending. The sort is stable so
// equal scores keep the order they came in with.
func SortByScore(teams []Team) {
	sort.SliceStable(teams, func(i, j int) bool {
		return teams[i].Score > teams[j].Score
	})
}

// IndexByName maps each team name to its position in teams.
func IndexByName(teams []Team) map[string]int {
	idx := make(map[string]int, len(teams))
	for i, t := range teams {
		idx[t.Name] = i
	}
	return idx
}
