package escrow

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cinchpay/cinch/internal/access"
	"github.com/cinchpay/cinch/internal/ledger"
	"github.com/cinchpay/cinch/internal/payment"
	"github.com/cinchpay/cinch/internal/validation"
)

// Handler provides HTTP endpoints for escrow operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/escrow/:id", h.GetEscrow)
	r.GET("/escrow/:id/outcome", h.GetOutcome)
	r.GET("/agents/:address/escrows", h.ListEscrows)
}

// RegisterProtectedRoutes sets up protected (auth-required) escrow routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/escrow", h.CreateEscrow)
	r.POST("/escrow/private", h.CreatePrivateEscrow)
	r.POST("/escrow/:id/release", h.ReleaseEscrow)
	r.POST("/escrow/:id/refund", h.RefundEscrow)
}

// CreateEscrow handles POST /v1/escrow
func (h *Handler) CreateEscrow(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAddress("buyer_addr", req.BuyerAddr),
		validation.ValidAddress("seller_addr", req.SellerAddr),
		validation.ValidAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	// The authenticated caller funds the escrow, so it must be the buyer.
	callerAddr := c.GetString("authAgentAddr")
	if !strings.EqualFold(callerAddr, req.BuyerAddr) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Authenticated caller must be the buyer",
		})
		return
	}

	escrow, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"escrow": escrow})
}

// CreatePrivateEscrow handles POST /v1/escrow/private
func (h *Handler) CreatePrivateEscrow(c *gin.Context) {
	var req CreatePrivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAddress("buyer_addr", req.BuyerAddr),
		validation.ValidAddress("seller_addr", req.SellerAddr),
		validation.Required("handle", req.Handle),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	callerAddr := c.GetString("authAgentAddr")
	if !strings.EqualFold(callerAddr, req.BuyerAddr) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Authenticated caller must be the buyer",
		})
		return
	}

	escrow, err := h.service.CreatePrivate(c.Request.Context(), req)
	if err != nil {
		respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"escrow": escrow})
}

// GetEscrow handles GET /v1/escrow/:id
func (h *Handler) GetEscrow(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}

	escrow, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
}

// GetOutcome handles GET /v1/escrow/:id/outcome
func (h *Handler) GetOutcome(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}

	outcome, settled, err := h.service.Outcome(c.Request.Context(), id)
	if err != nil {
		respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"settled": settled,
		"outcome": outcome,
	})
}

// ListEscrows handles GET /v1/agents/:address/escrows
func (h *Handler) ListEscrows(c *gin.Context) {
	address := c.Param("address")
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	escrows, err := h.service.ListByParty(c.Request.Context(), address, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"escrows": escrows,
		"count":   len(escrows),
	})
}

// ReleaseEscrow handles POST /v1/escrow/:id/release
func (h *Handler) ReleaseEscrow(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}
	callerAddr := c.GetString("authAgentAddr") // Set by auth middleware

	escrow, err := h.service.Release(c.Request.Context(), id, callerAddr)
	if err != nil {
		respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
}

// RefundEscrow handles POST /v1/escrow/:id/refund
func (h *Handler) RefundEscrow(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}
	callerAddr := c.GetString("authAgentAddr")

	escrow, err := h.service.RefundBuyer(c.Request.Context(), id, callerAddr)
	if err != nil {
		respondEscrowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
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

// respondEscrowError maps service errors to HTTP responses.
func respondEscrowError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrEscrowNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, access.ErrNotAuthorized):
		status = http.StatusForbidden
		code = "unauthorized"
	case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrInvalidStatus):
		status = http.StatusConflict
		code = "invalid_state"
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrSameParty),
		errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrInvalidAmount):
		status = http.StatusBadRequest
		code = "validation_error"
	case errors.Is(err, payment.ErrCannotMixPrivacyModes):
		status = http.StatusBadRequest
		code = "mixed_privacy_modes"
	case errors.Is(err, payment.ErrPrivacyNotAvailable):
		status = http.StatusConflict
		code = "privacy_unavailable"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status = http.StatusBadRequest
		code = "insufficient_balance"
	case errors.Is(err, access.ErrMultisigRequired):
		status = http.StatusBadRequest
		code = "multisig_required"
	case errors.Is(err, access.ErrAmountTooLarge):
		status = http.StatusForbidden
		code = "amount_too_large"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
