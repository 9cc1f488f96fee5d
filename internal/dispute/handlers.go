package dispute

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cinchpay/cinch/internal/access"
	"github.com/cinchpay/cinch/internal/escrow"
	"github.com/cinchpay/cinch/internal/ledger"
	"github.com/cinchpay/cinch/internal/stakes"
	"github.com/cinchpay/cinch/internal/validation"
)

// Handler provides HTTP endpoints for dispute operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new dispute handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up protected (auth-required) dispute routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/escrow/:id/dispute/commit", h.Commit)
	r.POST("/escrow/:id/dispute/reveal", h.Reveal)
	r.POST("/escrow/:id/dispute/vote", h.VotePrivate)
	r.POST("/escrow/:id/dispute/settle", h.Settle)
	r.POST("/escrow/:id/dispute/resolve", h.ArbitratorResolve)
}

// CommitRequest contains a vote commitment.
type CommitRequest struct {
	Commit string `json:"commit" binding:"required"`
}

// RevealRequest contains an opened vote.
type RevealRequest struct {
	Vote *bool  `json:"vote" binding:"required"`
	Salt string `json:"salt" binding:"required"`
}

// VoteRequest contains a direct vote for confidential escrows.
type VoteRequest struct {
	Vote *bool `json:"vote" binding:"required"`
}

// ResolveRequest contains the arbitrator's forced direction.
type ResolveRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

// Commit handles POST /v1/escrow/:id/dispute/commit
func (h *Handler) Commit(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}
	callerAddr := c.GetString("authAgentAddr") // Set by auth middleware

	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "commit is required",
		})
		return
	}
	if errs := validation.Validate(
		validation.ValidCommitHash("commit", req.Commit),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
		})
		return
	}

	esc, err := h.service.Commit(c.Request.Context(), id, callerAddr, req.Commit)
	if err != nil {
		respondDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": esc})
}

// Reveal handles POST /v1/escrow/:id/dispute/reveal
func (h *Handler) Reveal(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}
	callerAddr := c.GetString("authAgentAddr")

	var req RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Vote == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "vote and salt are required",
		})
		return
	}

	esc, err := h.service.Reveal(c.Request.Context(), id, callerAddr, *req.Vote, req.Salt)
	if err != nil {
		respondDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": esc})
}

// VotePrivate handles POST /v1/escrow/:id/dispute/vote
func (h *Handler) VotePrivate(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}
	callerAddr := c.GetString("authAgentAddr")

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Vote == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "vote is required",
		})
		return
	}

	esc, err := h.service.VotePrivate(c.Request.Context(), id, callerAddr, *req.Vote)
	if err != nil {
		respondDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": esc})
}

// Settle handles POST /v1/escrow/:id/dispute/settle
func (h *Handler) Settle(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}

	esc, err := h.service.Settle(c.Request.Context(), id)
	if err != nil {
		respondDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": esc})
}

// ArbitratorResolve handles POST /v1/escrow/:id/dispute/resolve
func (h *Handler) ArbitratorResolve(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}
	callerAddr := c.GetString("authAgentAddr")

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "outcome is required (released or refunded)",
		})
		return
	}

	esc, err := h.service.ArbitratorResolve(c.Request.Context(), id, callerAddr, req.Outcome)
	if err != nil {
		respondDisputeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": esc})
}

// escrowID parses the :id URL parameter, responding 400 on garbage.
func escrowID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Escrow id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

// respondDisputeError maps service errors to HTTP responses.
func respondDisputeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, escrow.ErrEscrowNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, access.ErrNotAuthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, escrow.ErrAlreadyResolved), errors.Is(err, escrow.ErrInvalidStatus),
		errors.Is(err, ErrAwaitingArbitrator), errors.Is(err, ErrArbitrationNotReady),
		errors.Is(err, ErrRevealWindowOpen), errors.Is(err, ErrDisputeWindowClosed),
		errors.Is(err, ErrAlreadyCommitted), errors.Is(err, stakes.ErrAlreadyStaked):
		status = http.StatusConflict
		code = "invalid_state"
	case errors.Is(err, ErrRevealMismatch), errors.Is(err, ErrNoCommit),
		errors.Is(err, ErrInvalidCommit), errors.Is(err, ErrBadSalt),
		errors.Is(err, ErrInvalidOutcome), errors.Is(err, ErrWrongMode):
		status = http.StatusBadRequest
		code = "invalid_dispute_action"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status = http.StatusBadRequest
		code = "insufficient_balance"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
