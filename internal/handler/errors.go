package handler

import (
	"errors"
	"net/http"

	"backend/internal/policy"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError translates service errors into the API's status code contract:
// authorization denials are 403, invalid lifecycle transitions and bad input
// are 400, missing entities 404, concurrent or uniqueness conflicts 409.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	c.JSON(status, response.Error(status, err.Error()))
}

func statusFor(err error) int {
	var permErr *service.PermissionDeniedError
	if errors.As(err, &permErr) {
		return http.StatusForbidden
	}
	var transErr *service.InvalidTransitionError
	if errors.As(err, &transErr) {
		return http.StatusBadRequest
	}
	var valErr *service.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest
	}
	if errors.Is(err, service.ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, service.ErrConflict) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// currentActor rebuilds the acting user from the values RequireRole stored in
// the gin context.
func currentActor(c *gin.Context) (policy.Actor, bool) {
	rawID, exists := c.Get("userID")
	if !exists {
		return policy.Actor{}, false
	}
	idStr, ok := rawID.(string)
	if !ok {
		return policy.Actor{}, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return policy.Actor{}, false
	}

	actor := policy.Actor{ID: id, Role: c.GetString("userRole")}
	if deptStr := c.GetString("userDept"); deptStr != "" {
		if dept, err := uuid.Parse(deptStr); err == nil {
			actor.DepartmentID = &dept
		}
	}
	return actor, true
}

// mustActor aborts with 401 when the auth context is missing or malformed.
func mustActor(c *gin.Context) (policy.Actor, bool) {
	actor, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User identity not found in context"))
	}
	return actor, ok
}
