package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pool_data/internal/models"
	"pool_data/internal/service"
	"pool_data/internal/storage"
)

// Handler API 处理器
type Handler struct {
	store   *storage.SnapshotStore
	checker *service.Checker
	stats   *service.StatsBuilder
	logger  *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(store *storage.SnapshotStore, checker *service.Checker,
	stats *service.StatsBuilder, logger *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		checker: checker,
		stats:   stats,
		logger:  logger,
	}
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/dates", h.GetDates)
		api.GET("/pool/:category", h.GetPool)
		api.GET("/stats/daily", h.GetDailyStats)
		api.GET("/check/:date", h.CheckDate)
	}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "OK",
		Data: gin.H{
			"status": "healthy",
		},
	})
}

// GetDates 获取有数据的日期列表
func (h *Handler) GetDates(c *gin.Context) {
	dates, err := h.store.Dates()
	if err != nil {
		h.logger.Error("枚举日期失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"list":  dates,
			"total": len(dates),
		},
	})
}

// GetPool 获取某日某类别的股池快照
func (h *Handler) GetPool(c *gin.Context) {
	category, err := models.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: err.Error(),
		})
		return
	}

	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "缺少参数: date",
		})
		return
	}

	snapshot, err := h.store.Read(category, date)
	if err != nil {
		if errors.Is(err, storage.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, Response{
				Code:    404,
				Message: "该日期无数据",
			})
			return
		}

		h.logger.Error("读取快照失败",
			zap.String("category", string(category)),
			zap.String("date", date),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    snapshot,
	})
}

// GetDailyStats 获取每日统计
// 可选 start/end 参数过滤日期区间（yyyy-MM-dd，字符串比较）。
func (h *Handler) GetDailyStats(c *gin.Context) {
	dates, err := h.store.Dates()
	if err != nil {
		h.logger.Error("枚举日期失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Code:    500,
			Message: err.Error(),
		})
		return
	}

	start := c.Query("start")
	end := c.Query("end")

	filtered := make([]string, 0, len(dates))
	for _, date := range dates {
		if start != "" && date < start {
			continue
		}
		if end != "" && date > end {
			continue
		}
		filtered = append(filtered, date)
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"list":  h.stats.Build(filtered),
			"total": len(filtered),
		},
	})
}

// CheckDate 检查单个日期的数据完整性
func (h *Handler) CheckDate(c *gin.Context) {
	date := c.Param("date")

	complete, issues := h.checker.CheckDate(date)

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"date":     date,
			"complete": complete,
			"issues":   issues.Issues,
			"counts":   issues.Counts,
		},
	})
}
