package types

import "encoding/json"

// Every push frame, in both directions, is an Envelope:
//   event:     string
//   data:      object (payload for the event)
//   requestId: string (optional; client commands set it, acks echo it)

// Client -> Server
// updateScore: { teamName, points }            points is a signed numeric string
// addTeam:     { name, companyName, score }
// deleteTeam:  { teamId }
// updateTeam:  { teamId, name?, companyName?, score? }
//
// Server -> Client
// scoreUpdate: { teams, updatedTeam? }
// teamDeleted: { teams, deletedTeam }
// teamUpdated: { teams, updatedTeam }
// ack:         { requestId, event, ok, error?, kind? }   only to the sender

const (
	EventUpdateScore = "updateScore"
	EventAddTeam     = "addTeam"
	EventDeleteTeam  = "deleteTeam"
	EventUpdateTeam  = "updateTeam"

	EventScoreUpdate = "scoreUpdate"
	EventTeamDeleted = "teamDeleted"
	EventTeamUpdated = "teamUpdated"
	EventAck         = "ack"
)

type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

type ScoreUpdate struct {
	Teams       []Team `json:"teams"`
	UpdatedTeam *Team  `json:"updatedTeam,omitempty"`
}

type TeamDeleted struct {
	Teams       []Team `json:"teams"`
	DeletedTeam Team   `json:"deletedTeam"`
}

type TeamUpdated struct {
	Teams       []Team `json:"teams"`
	UpdatedTeam Team   `json:"updatedTeam"`
}

// Ack answers a single client command. Kind is one of "validation",
// "not_found", "duplicate_name" or "store" when OK is false.
type Ack struct {
	RequestID string `json:"requestId,omitempty"`
	Event     string `json:"event"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// Request bodies. The push commands carry the same shapes as data.

type InitializeRequest struct {
	Teams json.RawMessage `json:"teams"`
}

type AddTeamRequest struct {
	Name        string `json:"name"`
	CompanyName string `json:"companyName"`
	Score       any    `json:"score,omitempty"`
}

type UpdateScoreRequest struct {
	TeamName string `json:"teamName"`
	Points   any    `json:"points"`
}

type UpdateTeamRequest struct {
	TeamID      string  `json:"teamId,omitempty"`
	Name        *string `json:"name,omitempty"`
	CompanyName *string `json:"companyName,omitempty"`
	Score       any     `json:"score,omitempty"`
}

type DeleteTeamRequest struct {
	TeamID string `json:"teamId"`
}

// Response bodies of the request/response API.

type TeamsResponse struct {
	Message string `json:"message"`
	Teams   []Team `json:"teams"`
}

type TeamResponse struct {
	Message     string `json:"message"`
	Team        Team   `json:"team"`
	Leaderboard []Team `json:"leaderboard"`
}

type DeleteResponse struct {
	Message     string `json:"message"`
	TeamID      string `json:"teamId"`
	Leaderboard []Team `json:"leaderboard"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
