package match

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

// POST /matches  body: {player1Id, player2Id}
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, err)
		return
	}
	m, err := h.svc.Create(c.Request.Context(), req.Player1ID, req.Player2ID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// POST /matches/:id/complete  body: {winnerId}
func (h *Handler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest(c, err)
		return
	}
	m, err := h.svc.Complete(c.Request.Context(), c.Param("id"), req.WinnerID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// POST /matches/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	m, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GET /matches/:id
func (h *Handler) Get(c *gin.Context) {
	m, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GET /matches
func (h *Handler) List(c *gin.Context) {
	ms, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ms)
}

// GET /matches/player/:playerId
func (h *Handler) ListByPlayer(c *gin.Context) {
	ms, err := h.svc.ListByPlayer(c.Request.Context(), c.Param("playerId"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ms)
}
