package apierr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Queue errors
var (
	ErrAlreadyQueued = errors.New("player already in queue")
	ErrNotQueued     = errors.New("player not in queue")
)

// Match errors
var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrAlreadyCompleted  = errors.New("match already completed")
	ErrInvalidWinner     = errors.New("winner must be one of the match players")
	ErrInvalidPlayers    = errors.New("a match needs two distinct player ids")
	ErrSettlementPending = errors.New("match settlement already in progress for another winner")
)

// Collaborator errors
var (
	ErrUpstreamUnavailable = errors.New("rating store unavailable")
	ErrUnauthorized        = errors.New("invalid or missing internal API key")
	ErrPlayerMismatch      = errors.New("token does not belong to this player")
)

type mapping struct {
	err    error
	status int
	code   string
}

// Order matters only for errors that wrap each other; none of these do.
var table = []mapping{
	{ErrAlreadyQueued, http.StatusConflict, "ALREADY_QUEUED"},
	{ErrNotQueued, http.StatusNotFound, "NOT_QUEUED"},
	{ErrMatchNotFound, http.StatusNotFound, "MATCH_NOT_FOUND"},
	{ErrAlreadyCompleted, http.StatusConflict, "ALREADY_COMPLETED"},
	{ErrSettlementPending, http.StatusConflict, "SETTLEMENT_PENDING"},
	{ErrInvalidWinner, http.StatusUnprocessableEntity, "INVALID_WINNER"},
	{ErrInvalidPlayers, http.StatusUnprocessableEntity, "INVALID_PLAYERS"},
	{ErrUpstreamUnavailable, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
	{ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
	{ErrPlayerMismatch, http.StatusForbidden, "FORBIDDEN"},
}

// Status returns the HTTP status and stable code for err.
func Status(err error) (int, string) {
	for _, m := range table {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// Respond writes err as {"code", "error"} and aborts the chain.
func Respond(c *gin.Context, err error) {
	status, code := Status(err)
	c.AbortWithStatusJSON(status, gin.H{"code": code, "error": err.Error()})
}

// BadRequest is used for body binding failures.
func BadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "error": err.Error()})
}
