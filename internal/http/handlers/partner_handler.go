// README: Partner registry handlers (enrollment and admin controls, partner availability).
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"freshcart/internal/http/middleware"
	"freshcart/internal/modules/partner"
	"freshcart/internal/types"
)

type PartnerHandler struct {
	partners *partner.Service
}

func NewPartnerHandler(svc *partner.Service) *PartnerHandler {
	return &PartnerHandler{partners: svc}
}

type enrollReq struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Phone       string              `json:"phone"`
	Email       string              `json:"email"`
	VehicleType partner.VehicleType `json:"vehicleType"`
	Rating      float64             `json:"rating"`
}

// Enroll handles POST /api/admin/partners. id is the partner's auth uid.
func (h *PartnerHandler) Enroll(c *gin.Context) {
	var req enrollReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ID != "" && !isValidID(req.ID) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return
	}
	p, err := h.partners.Enroll(c.Request.Context(), partner.EnrollCommand{
		ID:          types.ID(req.ID),
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		VehicleType: req.VehicleType,
		Rating:      req.Rating,
	})
	if err != nil {
		writePartnerError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

func (h *PartnerHandler) List(c *gin.Context) {
	partners, err := h.partners.List(c.Request.Context())
	if err != nil {
		writePartnerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"partners": partners})
}

// Get handles GET /api/partners/:id for the partner themself or an admin.
func (h *PartnerHandler) Get(c *gin.Context) {
	id, ok := h.self(c)
	if !ok {
		return
	}
	p, err := h.partners.Get(c.Request.Context(), id)
	if err != nil {
		writePartnerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// Release handles POST /api/admin/partners/:id/release, an unconditional reset.
func (h *PartnerHandler) Release(c *gin.Context) {
	h.adminAction(c, h.partners.Release)
}

func (h *PartnerHandler) Deactivate(c *gin.Context) {
	h.adminAction(c, h.partners.Deactivate)
}

func (h *PartnerHandler) Reactivate(c *gin.Context) {
	h.adminAction(c, h.partners.Reactivate)
}

// Cleanup handles POST /api/admin/partners/cleanup.
func (h *PartnerHandler) Cleanup(c *gin.Context) {
	n, err := h.partners.CleanupStaleAssignments(c.Request.Context())
	if err != nil {
		writePartnerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"reclaimed": n})
}

func (h *PartnerHandler) GoOnline(c *gin.Context) {
	h.selfAction(c, h.partners.GoOnline)
}

func (h *PartnerHandler) GoOffline(c *gin.Context) {
	h.selfAction(c, h.partners.GoOffline)
}

func (h *PartnerHandler) adminAction(c *gin.Context, action func(context.Context, types.ID) error) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	h.respond(c, types.ID(id), action(c.Request.Context(), types.ID(id)))
}

func (h *PartnerHandler) selfAction(c *gin.Context, action func(context.Context, types.ID) error) {
	id, ok := h.self(c)
	if !ok {
		return
	}
	h.respond(c, id, action(c.Request.Context(), id))
}

func (h *PartnerHandler) respond(c *gin.Context, id types.ID, err error) {
	if err != nil {
		writePartnerError(c, err)
		return
	}
	p, err := h.partners.Get(c.Request.Context(), id)
	if err != nil {
		writePartnerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// self resolves :id and checks that a partner caller acts only on their own record.
func (h *PartnerHandler) self(c *gin.Context) (types.ID, bool) {
	id, ok := pathID(c)
	if !ok {
		return "", false
	}
	if middleware.CallerRole(c) != middleware.RoleAdmin && middleware.CallerUID(c) != id {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated partner")
		return "", false
	}
	return types.ID(id), true
}
