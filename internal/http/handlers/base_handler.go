// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"freshcart/internal/modules/geofence"
	"freshcart/internal/modules/location"
	"freshcart/internal/modules/order"
	"freshcart/internal/modules/partner"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts generated ids (32 hex chars) and auth uids (alphanumeric, up to 128).
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// bindOptionalJSON decodes a body that may be omitted entirely. An empty body
// leaves req untouched; malformed JSON writes a 400.
func bindOptionalJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// pathID reads and validates the :id parameter, writing a 400 when it is unusable.
func pathID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return id, true
}

func writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, order.ErrConflict),
		errors.Is(err, partner.ErrOrderAlreadyAssigned), errors.Is(err, partner.ErrConcurrentClaimConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrOTPMismatch), errors.Is(err, order.ErrOutsideServiceArea):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, partner.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		log.Printf("http: order request %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writePartnerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, partner.ErrBadRequest), errors.Is(err, location.ErrInvalidSample):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, partner.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, partner.ErrBusy), errors.Is(err, partner.ErrDuplicate),
		errors.Is(err, partner.ErrNotHolding), errors.Is(err, partner.ErrConcurrentClaimConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		log.Printf("http: partner request %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeGeofenceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, geofence.ErrInvalidCenter), errors.Is(err, geofence.ErrInvalidRadius):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		log.Printf("http: geofence request %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
