package websocket

// Events pushed to players.
const (
	EventQueueJoined    = "queue_joined"
	EventQueueLeft      = "queue_left"
	EventMatchCreated   = "match_created"
	EventMatchCompleted = "match_completed"
	EventMatchCancelled = "match_cancelled"
)

type OutgoingMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}
