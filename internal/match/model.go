package match

import (
	"time"

	"Matchmaking/internal/rating"
)

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// CreateRequest POST /matches
type CreateRequest struct {
	Player1ID string `json:"player1Id" binding:"required"`
	Player2ID string `json:"player2Id" binding:"required"`
}

// CompleteRequest POST /matches/:id/complete
type CompleteRequest struct {
	WinnerID string `json:"winnerId" binding:"required"`
}

// Match is a two-player contest. WinnerID, the rating changes and CompletedAt
// stay nil until the match is completed. Settlement is set only while a
// completion is in flight or after one failed part-way.
type Match struct {
	ID               string             `json:"id"`
	Player1ID        string             `json:"player1Id"`
	Player2ID        string             `json:"player2Id"`
	WinnerID         *string            `json:"winnerId"`
	Player1MMRChange *int               `json:"player1MmrChange"`
	Player2MMRChange *int               `json:"player2MmrChange"`
	Status           Status             `json:"status"`
	CreatedAt        time.Time          `json:"createdAt"`
	CompletedAt      *time.Time         `json:"completedAt"`
	Settlement       *rating.Settlement `json:"settlement,omitempty"`
}

func (m *Match) HasPlayer(id string) bool {
	return id == m.Player1ID || id == m.Player2ID
}

// Opponent returns the other player; id must be one of the two.
func (m *Match) Opponent(id string) string {
	if id == m.Player1ID {
		return m.Player2ID
	}
	return m.Player1ID
}

func (m *Match) Players() []string {
	return []string{m.Player1ID, m.Player2ID}
}

func (m *Match) clone() *Match {
	cp := *m
	if m.WinnerID != nil {
		w := *m.WinnerID
		cp.WinnerID = &w
	}
	if m.Player1MMRChange != nil {
		v := *m.Player1MMRChange
		cp.Player1MMRChange = &v
	}
	if m.Player2MMRChange != nil {
		v := *m.Player2MMRChange
		cp.Player2MMRChange = &v
	}
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		cp.CompletedAt = &t
	}
	if m.Settlement != nil {
		s := *m.Settlement
		cp.Settlement = &s
	}
	return &cp
}
