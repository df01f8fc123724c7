// README: Order handlers for the customer, partner and admin lifecycle endpoints.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"freshcart/internal/http/middleware"
	"freshcart/internal/modules/order"
	"freshcart/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createOrderReq struct {
	CustomerID          string       `json:"customerId"`
	Items               []order.Item `json:"items"`
	Discount            int64        `json:"discount"`
	DeliveryAddress     string       `json:"deliveryAddress"`
	DeliveryCoordinates *types.Point `json:"deliveryCoordinates"`
}

type otpReq struct {
	OTP string `json:"otp"`
}

type reasonReq struct {
	Reason string `json:"reason"`
}

type assignReq struct {
	PartnerID string `json:"partnerId"`
}

// Create handles POST /api/orders. Customers order for themselves only.
func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	uid := middleware.CallerUID(c)
	if req.CustomerID == "" {
		req.CustomerID = uid
	}
	if req.CustomerID != uid && middleware.CallerRole(c) != middleware.RoleAdmin {
		writeError(c, http.StatusForbidden, "forbidden: customerId does not match authenticated user")
		return
	}
	if len(req.Items) == 0 || strings.TrimSpace(req.DeliveryAddress) == "" {
		writeError(c, http.StatusBadRequest, "missing items or deliveryAddress")
		return
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		CustomerID:          types.ID(req.CustomerID),
		Items:               req.Items,
		Discount:            req.Discount,
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryCoordinates: req.DeliveryCoordinates,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, orderView(c, o))
}

// Get handles GET /api/orders/:id for the owning customer, the assigned partner or an admin.
func (h *OrderHandler) Get(c *gin.Context) {
	o, ok := h.load(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, orderView(c, o))
}

func (h *OrderHandler) Timeline(c *gin.Context) {
	o, ok := h.load(c)
	if !ok {
		return
	}
	events, err := h.order.Timeline(c.Request.Context(), o.ID)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orderId": o.ID, "events": events})
}

// ConfirmDelivery handles POST /api/orders/:id/confirm-delivery (customer).
func (h *OrderHandler) ConfirmDelivery(c *gin.Context) {
	h.confirm(c, order.ActorCustomer)
}

// Deliver handles POST /api/partner/orders/:id/deliver, where the partner
// types the code the customer reads out.
func (h *OrderHandler) Deliver(c *gin.Context) {
	h.confirm(c, order.ActorPartner)
}

func (h *OrderHandler) confirm(c *gin.Context, actor order.Actor) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req otpReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OTP == "" {
		writeError(c, http.StatusBadRequest, "missing otp")
		return
	}
	o, err := h.order.ConfirmDelivery(c.Request.Context(), order.ConfirmCommand{
		OrderID:   types.ID(id),
		ActorType: actor,
		ActorID:   types.ID(middleware.CallerUID(c)),
		OTP:       strings.TrimSpace(req.OTP),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(c, o))
}

func (h *OrderHandler) PartnerAccept(c *gin.Context) {
	h.partnerStep(c, h.order.PartnerAccept)
}

func (h *OrderHandler) PickUp(c *gin.Context) {
	h.partnerStep(c, h.order.PickUp)
}

func (h *OrderHandler) Arrive(c *gin.Context) {
	h.partnerStep(c, h.order.Arrive)
}

func (h *OrderHandler) partnerStep(c *gin.Context, step func(context.Context, order.PartnerCommand) (*order.Order, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := step(c.Request.Context(), order.PartnerCommand{
		OrderID:   types.ID(id),
		PartnerID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(c, o))
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

// Accept handles POST /api/admin/orders/:id/accept. The response reports
// whether a partner could be assigned; an unassigned order stays confirmed.
func (h *OrderHandler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.Accept(c.Request.Context(), order.AdminCommand{
		OrderID: types.ID(id),
		AdminID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": orderView(c, o), "assigned": o.DeliveryPartner != nil})
}

func (h *OrderHandler) Reject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reasonReq
	if !bindOptionalJSON(c, &req) {
		return
	}
	o, err := h.order.Reject(c.Request.Context(), order.AdminCommand{
		OrderID: types.ID(id),
		AdminID: types.ID(middleware.CallerUID(c)),
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(c, o))
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reasonReq
	if !bindOptionalJSON(c, &req) {
		return
	}
	adminID := types.ID(middleware.CallerUID(c))
	o, err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID:   types.ID(id),
		ActorType: order.ActorAdmin,
		ActorID:   &adminID,
		Reason:    req.Reason,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orderView(c, o))
}

// Assign handles POST /api/admin/orders/:id/assign with an optional partnerId.
func (h *OrderHandler) Assign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req assignReq
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.PartnerID != "" && !isValidID(req.PartnerID) {
		writeError(c, http.StatusBadRequest, "invalid partnerId")
		return
	}
	o, err := h.order.AssignPartner(c.Request.Context(), order.AssignCommand{
		OrderID:   types.ID(id),
		AdminID:   types.ID(middleware.CallerUID(c)),
		PartnerID: types.ID(req.PartnerID),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order": orderView(c, o), "assigned": o.DeliveryPartner != nil})
}

// ReissueOTP handles POST /api/admin/orders/:id/otp. The new code reaches the
// customer through their order view, never through this response.
func (h *OrderHandler) ReissueOTP(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, err := h.order.OTP().Issue(c.Request.Context(), types.ID(id)); err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orderId": id, "reissued": true})
}

// List handles GET /api/admin/orders?status=.
func (h *OrderHandler) List(c *gin.Context) {
	status := order.Status(c.DefaultQuery("status", string(order.StatusPending)))
	orders, err := h.order.ListByStatus(c.Request.Context(), status)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	views := make([]*order.Order, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView(c, o))
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": views})
}

// load fetches the :id order and enforces that the caller may see it.
func (h *OrderHandler) load(c *gin.Context) (*order.Order, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return nil, false
	}
	if !canView(c, o) {
		writeError(c, http.StatusForbidden, "forbidden: not your order")
		return nil, false
	}
	return o, true
}

func canView(c *gin.Context, o *order.Order) bool {
	uid := types.ID(middleware.CallerUID(c))
	switch middleware.CallerRole(c) {
	case middleware.RoleAdmin:
		return true
	case middleware.RolePartner:
		return o.AssignedTo(uid)
	default:
		return o.CustomerID == uid
	}
}

// orderView hides the delivery code from everyone but the ordering customer.
func orderView(c *gin.Context, o *order.Order) *order.Order {
	if o.DeliveryOTP == "" || (middleware.CallerRole(c) == middleware.RoleCustomer && o.CustomerID == types.ID(middleware.CallerUID(c))) {
		return o
	}
	cp := *o
	cp.DeliveryOTP = ""
	return &cp
}
