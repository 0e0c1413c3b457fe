package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bottleworks/internal/database/models"
)

type DashboardHandler struct {
	db                *gorm.DB
	log               *zap.Logger
	lowStockThreshold int
}

func NewDashboardHandler(db *gorm.DB, log *zap.Logger, lowStockThreshold int) *DashboardHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DashboardHandler{db: db, log: log, lowStockThreshold: lowStockThreshold}
}

type noteRequest struct {
	Content string `json:"content"`
}

// GetStats aggregates the dashboard counters. Read-only.
func (h *DashboardHandler) GetStats(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())

	var totalProducts int64
	if err := db.Model(&models.Product{}).Count(&totalProducts).Error; err != nil {
		h.statsError(c, err)
		return
	}

	var lowStockItems int64
	if err := db.Model(&models.Product{}).
		Where("current_stock < ?", h.lowStockThreshold).
		Count(&lowStockItems).Error; err != nil {
		h.statsError(c, err)
		return
	}

	var totalRevenue decimal.Decimal
	if err := db.Model(&models.SalesEvent{}).
		Select("COALESCE(SUM(total_revenue), 0)").
		Scan(&totalRevenue).Error; err != nil {
		h.statsError(c, err)
		return
	}

	var totalSales int64
	if err := db.Model(&models.SalesEvent{}).Count(&totalSales).Error; err != nil {
		h.statsError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalProducts": totalProducts,
		"lowStockItems": lowStockItems,
		"totalRevenue":  totalRevenue,
		"totalSales":    totalSales,
	})
}

func (h *DashboardHandler) statsError(c *gin.Context, err error) {
	h.log.Error("dashboard stats failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch dashboard stats"})
}

// -- Notes (singleton) --

func (h *DashboardHandler) GetNotes(c *gin.Context) {
	var note models.DashboardNote
	err := h.db.WithContext(c.Request.Context()).First(&note, models.NoteSingletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, nil)
		return
	}
	if err != nil {
		h.log.Error("get notes failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notes"})
		return
	}
	c.JSON(http.StatusOK, note)
}

// SaveNotes creates the singleton row on first save and updates it in place
// afterwards.
func (h *DashboardHandler) SaveNotes(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var note models.DashboardNote
	err := h.db.WithContext(c.Request.Context()).First(&note, models.NoteSingletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		note = models.DashboardNote{ID: models.NoteSingletonID, Content: req.Content}
		if err := h.db.WithContext(c.Request.Context()).Create(&note).Error; err != nil {
			h.log.Error("create notes failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notes"})
			return
		}
		c.JSON(http.StatusCreated, note)
		return
	}
	if err != nil {
		h.log.Error("get notes failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save notes"})
		return
	}

	note.Content = req.Content
	if err := h.db.WithContext(c.Request.Context()).Save(&note).Error; err != nil {
		h.log.Error("update notes failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save notes"})
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *DashboardHandler) UpdateNotes(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid note id"})
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var note models.DashboardNote
	if err := h.db.WithContext(c.Request.Context()).First(&note, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notes not found"})
			return
		}
		h.log.Error("get notes failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notes"})
		return
	}

	note.Content = req.Content
	if err := h.db.WithContext(c.Request.Context()).Save(&note).Error; err != nil {
		h.log.Error("update notes failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notes"})
		return
	}
	c.JSON(http.StatusOK, note)
}
