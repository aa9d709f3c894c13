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

type RequestHandler struct {
	requestService service.RequestService
}

func NewRequestHandler(requestService service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

var allRoles = []string{
	model.RoleEmployee,
	model.RoleManager,
	model.RoleDepartmentHead,
	model.RoleFinance,
	model.RoleAdmin,
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/requests")
	{
		authenticated := middleware.RequireRole(allRoles...)
		requests.POST("", authenticated, h.CreateRequest)
		requests.GET("", authenticated, h.ListRequests)
		requests.GET("/:id", authenticated, h.GetRequest)
		requests.PUT("/:id", authenticated, h.UpdateRequest)
		requests.DELETE("/:id", authenticated, h.DeleteRequest)
		requests.PUT("/:id/submit", authenticated, h.SubmitRequest)
		requests.PUT("/:id/cancel", authenticated, h.CancelRequest)
		requests.PUT("/:id/pay", middleware.RequireRole(model.RoleFinance, model.RoleAdmin), h.PayRequest)
	}
}

// CreateRequest handles POST /requests
// @Summary      Create a resource request
// @Description  Creates a resource request owned by the caller. save_as_draft keeps it out of the approval pipeline.
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateRequestDTO  true  "Create Request Payload"
// @Success      201      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /requests [post]
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req service.CreateRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requestService.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListRequests handles GET /requests with role-scoped visibility
// @Summary      List resource requests
// @Description  Lists requests the caller may see: admins and finance see all, managers their department, everyone else their own.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status    query     string  false  "Filter by status"
// @Param        priority  query     string  false  "Filter by priority"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Items per page (default 20)"
// @Success      200       {object}  response.Response{data=response.PaginatedData}
// @Failure      500       {object}  response.Response
// @Router       /requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	params := pagination.Parse(c)
	filter := service.ListRequestsFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Page:     params.Page,
		Limit:    params.Limit,
	}

	requests, total, err := h.requestService.List(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, requests, total, params.Page, params.Limit))
}

// GetRequest handles GET /requests/:id
// @Summary      Get a resource request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	result, err := h.requestService.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// UpdateRequest handles PUT /requests/:id
// @Summary      Update a resource request
// @Description  Owner-only field edits. Once Submitted only the description may change; other fields are ignored.
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Request ID"
// @Param        payload  body      service.UpdateRequestDTO  true  "Update Request Payload"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /requests/{id} [put]
func (h *RequestHandler) UpdateRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req service.UpdateRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requestService.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// DeleteRequest handles DELETE /requests/:id
// @Summary      Delete a resource request
// @Description  Deletes a Draft, Submitted or Rejected request. Owner or admin only.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /requests/{id} [delete]
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	if err := h.requestService.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Request deleted successfully"))
}

// SubmitRequest handles PUT /requests/:id/submit
// @Summary      Submit a resource request
// @Description  Moves a Draft or Rejected request into the approval pipeline.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /requests/{id}/submit [put]
func (h *RequestHandler) SubmitRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	result, err := h.requestService.Submit(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CancelRequest handles PUT /requests/:id/cancel
// @Summary      Cancel a resource request
// @Description  Cancels a request that has not reached final approval. The request ends in Rejected.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /requests/{id}/cancel [put]
func (h *RequestHandler) CancelRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	result, err := h.requestService.Cancel(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// PayRequest handles PUT /requests/:id/pay
// @Summary      Pay an approved request
// @Description  Marks an Approved request as Paid. Finance and admin only.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /requests/{id}/pay [put]
func (h *RequestHandler) PayRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	result, err := h.requestService.MarkPaid(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
