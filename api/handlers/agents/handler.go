package agents

import (
	"errors"
	"net/http"
	"strconv"

	apicommon "backend/api/handlers/common"
	"backend/internal/catalog"

	"github.com/gin-gonic/gin"
)

// Handler 智能体目录 Handler
type Handler struct {
	service *catalog.Service
}

// NewHandler 创建 Handler
func NewHandler(service *catalog.Service) *Handler {
	return &Handler{service: service}
}

// List 查询智能体列表
// @Summary 查询智能体列表
// @Tags Agents
// @Produce json
// @Param pattern query string false "按行为模式过滤"
// @Param source_session_id query string false "按来源会话过滤"
// @Param keyword query string false "名称/用途模糊匹配"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} apicommon.ListResponse
// @Router /api/agents [get]
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	query := catalog.ListQuery{
		TenantID:        c.GetString("tenant_id"),
		Pattern:         c.Query("pattern"),
		SourceSessionID: c.Query("source_session_id"),
		Keyword:         c.Query("keyword"),
		Page:            page,
		PageSize:        pageSize,
	}

	agents, total, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	c.JSON(http.StatusOK, apicommon.ListResponse{
		Items:      agents,
		Pagination: apicommon.NewPaginationMeta(page, pageSize, total),
	})
}

// Get 查询单个智能体及关联记录
// @Summary 查询智能体详情
// @Tags Agents
// @Produce json
// @Param id path string true "智能体ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/agents/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	detail, err := h.service.GetWithDetails(c.Request.Context(), c.GetString("tenant_id"), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}
