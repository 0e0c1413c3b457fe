package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bottleworks/internal/database/models"
)

var errProductNotFound = errors.New("product not found")

type SalesHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSalesHandler(db *gorm.DB, log *zap.Logger) *SalesHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SalesHandler{db: db, log: log}
}

type saleItemRequest struct {
	ProductID     int64            `json:"product_id" binding:"required"`
	ProductName   string           `json:"product_name"`
	StartingStock int              `json:"starting_stock"`
	EndingStock   *int             `json:"ending_stock"`
	QuantitySold  int              `json:"quantity_sold"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	PricePerUnit  *decimal.Decimal `json:"price_per_unit"` // legacy client field name
}

type saleEventRequest struct {
	EventName  string            `json:"event_name"`
	MarketName string            `json:"market_name"` // legacy client field name
	EventDate  string            `json:"event_date" binding:"required"`
	Notes      string            `json:"notes"`
	Items      []saleItemRequest `json:"items"`
}

func (r saleEventRequest) name() string {
	if r.EventName != "" {
		return r.EventName
	}
	return r.MarketName
}

func (i saleItemRequest) price() decimal.Decimal {
	if i.PricePerUnit != nil && !i.UnitPrice.IsPositive() {
		return *i.PricePerUnit
	}
	return i.UnitPrice
}

// quantity derives units sold: once a remaining count is known it is
// brought - remaining floored at zero, otherwise the submitted quantity.
func (i saleItemRequest) quantity() int {
	if i.EndingStock != nil {
		q := i.StartingStock - *i.EndingStock
		if q < 0 {
			q = 0
		}
		return q
	}
	return i.QuantitySold
}

// -- Reads --

func (h *SalesHandler) ListEvents(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.SalesEvent{})
	if month := c.Query("month"); month != "" {
		if _, err := time.Parse("2006-01", month); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
			return
		}
		query = query.Where("event_date LIKE ?", month+"%")
	}

	var events []models.SalesEvent
	if err := query.Order("event_date DESC, created_at DESC").Find(&events).Error; err != nil {
		h.log.Error("list sales events failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sales events"})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *SalesHandler) GetEvent(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event id"})
		return
	}

	var event models.SalesEvent
	if err := h.db.WithContext(c.Request.Context()).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Sales event not found"})
			return
		}
		h.log.Error("get sales event failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sales event"})
		return
	}

	var items []models.SalesItem
	if err := h.db.WithContext(c.Request.Context()).Where("sales_event_id = ?", id).Find(&items).Error; err != nil {
		h.log.Error("get sales items failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sales event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": event, "items": items})
}

func (h *SalesHandler) ListItems(c *gin.Context) {
	var items []models.SalesItem
	if err := h.db.WithContext(c.Request.Context()).Order("created_at DESC").Find(&items).Error; err != nil {
		h.log.Error("list sales items failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sales items"})
		return
	}
	c.JSON(http.StatusOK, items)
}

// -- Mutations --

// CreateEvent records a market day: the event row, one item per product that
// actually sold units, and the matching stock decrements, all in one
// transaction. Pending items (no remaining count yet) and zero-quantity items
// are left out.
func (h *SalesHandler) CreateEvent(c *gin.Context) {
	req, ok := h.bindEvent(c)
	if !ok {
		return
	}

	var event models.SalesEvent
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		event = models.SalesEvent{
			EventDate: req.EventDate,
			EventName: req.name(),
			Notes:     req.Notes,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		total, err := insertItems(tx, &event, req.Items)
		if err != nil {
			return err
		}
		return tx.Model(&event).Update("total_revenue", total).Error
	})
	if err != nil {
		h.respondMutationError(c, err, "Failed to create sales event")
		return
	}

	c.JSON(http.StatusCreated, event)
}

// UpdateEvent uses reverse-then-reapply: every old item's stock effect is
// undone before the new items are inserted and applied.
func (h *SalesHandler) UpdateEvent(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event id"})
		return
	}

	req, ok := h.bindEvent(c)
	if !ok {
		return
	}

	var event models.SalesEvent
	txErr := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&event, id).Error; err != nil {
			return err
		}
		if err := reverseItems(tx, event.ID); err != nil {
			return err
		}

		event.EventDate = req.EventDate
		event.EventName = req.name()
		event.Notes = req.Notes

		total, err := insertItems(tx, &event, req.Items)
		if err != nil {
			return err
		}
		event.TotalRevenue = total
		return tx.Save(&event).Error
	})
	if txErr != nil {
		h.respondMutationError(c, txErr, "Failed to update sales event")
		return
	}

	c.JSON(http.StatusOK, event)
}

// DeleteEvent restores every item's stock effect, then removes the items and
// the event.
func (h *SalesHandler) DeleteEvent(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event id"})
		return
	}

	txErr := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var event models.SalesEvent
		if err := tx.First(&event, id).Error; err != nil {
			return err
		}
		if err := reverseItems(tx, event.ID); err != nil {
			return err
		}
		return tx.Delete(&event).Error
	})
	if txErr != nil {
		h.respondMutationError(c, txErr, "Failed to delete sales event")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// -- Helpers --

func (h *SalesHandler) bindEvent(c *gin.Context) (saleEventRequest, bool) {
	var req saleEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	if req.name() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_name is required"})
		return req, false
	}
	if _, err := time.Parse("2006-01-02", req.EventDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_date must be YYYY-MM-DD"})
		return req, false
	}
	for _, item := range req.Items {
		if item.price().IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unit_price must not be negative"})
			return req, false
		}
		if item.EndingStock != nil && *item.EndingStock < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ending_stock must not be negative"})
			return req, false
		}
	}
	return req, true
}

// insertItems persists the sellable items and decrements each product's
// stock, returning the event's revenue total.
func insertItems(tx *gorm.DB, event *models.SalesEvent, items []saleItemRequest) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range items {
		quantity := item.quantity()
		if quantity <= 0 {
			continue
		}

		price := item.price()
		subtotal := decimal.NewFromInt(int64(quantity)).Mul(price)
		total = total.Add(subtotal)

		row := models.SalesItem{
			SalesEventID:  event.ID,
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			StartingStock: item.StartingStock,
			EndingStock:   item.EndingStock,
			QuantitySold:  quantity,
			UnitPrice:     price,
			Subtotal:      subtotal,
		}
		if err := tx.Create(&row).Error; err != nil {
			return decimal.Zero, err
		}

		res := tx.Model(&models.Product{}).Where("id = ?", item.ProductID).
			Update("current_stock", gorm.Expr("current_stock - ?", quantity))
		if res.Error != nil {
			return decimal.Zero, res.Error
		}
		if res.RowsAffected == 0 {
			return decimal.Zero, fmt.Errorf("product %d: %w", item.ProductID, errProductNotFound)
		}
	}
	return total, nil
}

// reverseItems undoes the stock decrements of an event's items and deletes
// the item rows.
func reverseItems(tx *gorm.DB, eventID int64) error {
	var items []models.SalesItem
	if err := tx.Where("sales_event_id = ?", eventID).Find(&items).Error; err != nil {
		return err
	}
	for _, item := range items {
		if err := tx.Model(&models.Product{}).Where("id = ?", item.ProductID).
			Update("current_stock", gorm.Expr("current_stock + ?", item.QuantitySold)).Error; err != nil {
			return err
		}
	}
	return tx.Where("sales_event_id = ?", eventID).Delete(&models.SalesItem{}).Error
}

func (h *SalesHandler) respondMutationError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, errProductNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sales event not found"})
		return
	}
	h.log.Error(fallback, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}

func parseID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
