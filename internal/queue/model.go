package queue

import (
	"sort"
	"time"
)

// JoinRequest is the body of both /queue/join and /queue/leave.
type JoinRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

// Entry is a player's claim to a waiting slot. MMR is the rating snapshot
// taken when the player joined.
type Entry struct {
	ID       string    `json:"id"`
	PlayerID string    `json:"playerId"`
	MMR      int       `json:"mmr"`
	JoinedAt time.Time `json:"joinedAt"`
}

// sortEntries orders by (MMR, JoinedAt) so a pairing policy can scan neighbours.
func sortEntries(es []*Entry) {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].MMR != es[j].MMR {
			return es[i].MMR < es[j].MMR
		}
		return es[i].JoinedAt.Before(es[j].JoinedAt)
	})
}
