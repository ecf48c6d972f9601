package queue

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Matchmaking/internal/apierr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// sameAsToken rejects a body playerId that differs from the authenticated one.
// Without the JWT middleware there is no "playerId" and nothing is checked.
func sameAsToken(c *gin.Context, playerID string) error {
	if sub := c.GetString("playerId"); sub != "" && sub != playerID {
		return apierr.ErrPlayerMismatch
	}
	return nil
}

// POST /queue/join  body: {playerId}
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, err)
		return
	}
	if err := sameAsToken(c, req.PlayerID); err != nil {
		apierr.Respond(c, err)
		return
	}
	e, err := h.svc.Join(c.Request.Context(), req.PlayerID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// POST /queue/leave  body: {playerId}
func (h *Handler) Leave(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, err)
		return
	}
	if err := sameAsToken(c, req.PlayerID); err != nil {
		apierr.Respond(c, err)
		return
	}
	if err := h.svc.Leave(c.Request.Context(), req.PlayerID); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left queue successfully"})
}

// GET /queue
func (h *Handler) List(c *gin.Context) {
	es, err := h.svc.List(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, es)
}

// GET /queue/:playerId
func (h *Handler) Get(c *gin.Context) {
	e, err := h.svc.Get(c.Request.Context(), c.Param("playerId"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}
