package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
}

func NewApprovalHandler(approvalService service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	deciders := middleware.RequireRole(model.RoleManager, model.RoleAdmin)
	requests := router.Group("/requests")
	{
		requests.PUT("/:id/approve", deciders, h.ApproveRequest)
		requests.PUT("/:id/reject", deciders, h.RejectRequest)
		requests.GET("/:id/approvals", middleware.RequireRole(allRoles...), h.ApprovalHistory)
	}
	router.GET("/approvals/pending", deciders, h.PendingApprovals)
}

// ApproveRequest handles PUT /requests/:id/approve
// @Summary      Approve a request
// @Description  Manager approval moves a Submitted request to SemiApproved; admin approval finalizes a SemiApproved request.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true   "Request ID"
// @Param        payload  body      service.DecideRequestDTO  false  "Optional comment"
// @Success      200      {object}  response.Response{data=service.DecisionResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /requests/{id}/approve [put]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req service.DecideRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		// Allow empty body — comment is optional
		req.Comment = ""
	}

	result, err := h.approvalService.Approve(c.Request.Context(), actor, c.Param("id"), req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RejectRequest handles PUT /requests/:id/reject
// @Summary      Reject a request
// @Description  Rejects a Submitted or SemiApproved request. Managers are scoped to their own department.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true   "Request ID"
// @Param        payload  body      service.DecideRequestDTO  false  "Optional comment"
// @Success      200      {object}  response.Response{data=service.DecisionResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /requests/{id}/reject [put]
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req service.DecideRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Comment = ""
	}

	result, err := h.approvalService.Reject(c.Request.Context(), actor, c.Param("id"), req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ApprovalHistory handles GET /requests/:id/approvals
// @Summary      List a request's approval history
// @Description  Returns the decision trail for a request, newest first. Visible to anyone who may view the request.
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true   "Request ID"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.PaginatedData}
// @Failure      403    {object}  response.Response
// @Failure      404    {object}  response.Response
// @Router       /requests/{id}/approvals [get]
func (h *ApprovalHandler) ApprovalHistory(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	params := pagination.Parse(c)
	history, total, err := h.approvalService.History(c.Request.Context(), actor, c.Param("id"), params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, history, total, params.Page, params.Limit))
}

// PendingApprovals handles GET /approvals/pending
// @Summary      List requests awaiting the caller's decision
// @Description  Managers see Submitted requests from their department; admins see SemiApproved requests.
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.PaginatedData}
// @Failure      500    {object}  response.Response
// @Router       /approvals/pending [get]
func (h *ApprovalHandler) PendingApprovals(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	params := pagination.Parse(c)
	pending, total, err := h.approvalService.Pending(c.Request.Context(), actor, params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, pending, total, params.Page, params.Limit))
}
