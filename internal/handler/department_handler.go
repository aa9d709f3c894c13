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

type DepartmentHandler struct {
	departmentService service.DepartmentService
}

func NewDepartmentHandler(departmentService service.DepartmentService) *DepartmentHandler {
	return &DepartmentHandler{departmentService: departmentService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *DepartmentHandler) RegisterRoutes(router *gin.RouterGroup) {
	departments := router.Group("/departments")
	{
		departments.GET("", middleware.RequireRole(allRoles...), h.ListDepartments)
		departments.GET("/:id", middleware.RequireRole(allRoles...), h.GetDepartment)

		admin := middleware.RequireRole(model.RoleAdmin)
		departments.POST("", admin, h.CreateDepartment)
		departments.PUT("/:id", admin, h.UpdateDepartment)
		departments.DELETE("/:id", admin, h.DeleteDepartment)
	}
}

// CreateDepartment handles POST /departments
// @Summary      Create a department
// @Description  Creates a department with an optional manager. Admin only.
// @Tags         departments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateDepartmentDTO  true  "Create Department Payload"
// @Success      201      {object}  response.Response{data=service.DepartmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /departments [post]
func (h *DepartmentHandler) CreateDepartment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req service.CreateDepartmentDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	dept, err := h.departmentService.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, dept))
}

// ListDepartments handles GET /departments
// @Summary      List departments
// @Tags         departments
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.PaginatedData}
// @Failure      500    {object}  response.Response
// @Router       /departments [get]
func (h *DepartmentHandler) ListDepartments(c *gin.Context) {
	params := pagination.Parse(c)

	depts, total, err := h.departmentService.List(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, depts, total, params.Page, params.Limit))
}

// GetDepartment handles GET /departments/:id
// @Summary      Get department by ID
// @Tags         departments
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Department ID"
// @Success      200  {object}  response.Response{data=service.DepartmentResponse}
// @Failure      404  {object}  response.Response
// @Router       /departments/{id} [get]
func (h *DepartmentHandler) GetDepartment(c *gin.Context) {
	dept, err := h.departmentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, dept))
}

// UpdateDepartment handles PUT /departments/:id
// @Summary      Update a department
// @Description  Renames a department or reassigns its manager. Admin only.
// @Tags         departments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Department ID"
// @Param        payload  body      service.UpdateDepartmentDTO  true  "Update Department Payload"
// @Success      200      {object}  response.Response{data=service.DepartmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /departments/{id} [put]
func (h *DepartmentHandler) UpdateDepartment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req service.UpdateDepartmentDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	dept, err := h.departmentService.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, dept))
}

// DeleteDepartment handles DELETE /departments/:id
// @Summary      Delete a department
// @Tags         departments
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Department ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /departments/{id} [delete]
func (h *DepartmentHandler) DeleteDepartment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	if err := h.departmentService.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Department deleted successfully"))
}
