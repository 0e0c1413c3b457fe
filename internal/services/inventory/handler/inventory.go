package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bottleworks/internal/database/models"
)

const (
	CategoryLids    = "lids"
	CategoryBottles = "bottles"
	CategoryLabels  = "labels"
)

type InventoryHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewInventoryHandler(db *gorm.DB, log *zap.Logger) *InventoryHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &InventoryHandler{db: db, log: log}
}

type productRequest struct {
	Name         string          `json:"name" binding:"required"`
	Size         string          `json:"size"`
	CurrentStock int             `json:"current_stock"`
	LidColor     string          `json:"lid_color"`
	BottleType   string          `json:"bottle_type"`
	Price        decimal.Decimal `json:"price"`
	Description  string          `json:"description"`
}

type componentRequest struct {
	Category    string          `json:"category" binding:"required,oneof=lids bottles labels"`
	Type        string          `json:"type" binding:"required"`
	Quantity    int             `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

type purchaseRequest struct {
	Quantity  int             `json:"quantity"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}

type productPurchaseRequest struct {
	Category  string          `json:"category" binding:"required,oneof=lids bottles labels"`
	Quantity  int             `json:"quantity"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}

// -- Products --

func (h *InventoryHandler) ListProducts(c *gin.Context) {
	var products []models.Product
	if err := h.db.WithContext(c.Request.Context()).Order("name ASC").Find(&products).Error; err != nil {
		h.log.Error("list products failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *InventoryHandler) GetProduct(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var product models.Product
	if err := h.db.WithContext(c.Request.Context()).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.log.Error("get product failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *InventoryHandler) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CurrentStock < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current_stock must not be negative"})
		return
	}

	product := models.Product{
		Name:         req.Name,
		Size:         req.Size,
		CurrentStock: req.CurrentStock,
		LidColor:     req.LidColor,
		BottleType:   req.BottleType,
		Price:        req.Price,
		Description:  req.Description,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&product).Error; err != nil {
		h.log.Error("create product failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
		return
	}
	c.JSON(http.StatusCreated, product)
}

// UpdateProduct also accepts direct current_stock edits; those are manual
// corrections outside the production/sales flows.
func (h *InventoryHandler) UpdateProduct(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CurrentStock < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current_stock must not be negative"})
		return
	}

	var product models.Product
	if err := h.db.WithContext(c.Request.Context()).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.log.Error("get product failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
		return
	}

	product.Name = req.Name
	product.Size = req.Size
	product.CurrentStock = req.CurrentStock
	product.LidColor = req.LidColor
	product.BottleType = req.BottleType
	product.Price = req.Price
	product.Description = req.Description

	if err := h.db.WithContext(c.Request.Context()).Save(&product).Error; err != nil {
		h.log.Error("update product failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *InventoryHandler) DeleteProduct(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Delete(&models.Product{}, id)
	if res.Error != nil {
		h.log.Error("delete product failed", zap.Int64("id", id), zap.Error(res.Error))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete product"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetProductComponents resolves the lid/bottle/label components backing a
// product. Matching is by lowercased lid_color / bottle_type / product name.
func (h *InventoryHandler) GetProductComponents(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var product models.Product
	if err := h.db.WithContext(c.Request.Context()).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.log.Error("get product failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}

	lid, err := findComponent(h.db, CategoryLids, product.LidColor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch components"})
		return
	}
	bottle, err := findComponent(h.db, CategoryBottles, product.BottleType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch components"})
		return
	}
	label, err := findComponent(h.db, CategoryLabels, product.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch components"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lids":    lid,
		"bottles": bottle,
		"labels":  label,
	})
}

// -- Components --

func (h *InventoryHandler) ListComponents(c *gin.Context) {
	var components []models.Component
	if err := h.db.WithContext(c.Request.Context()).Order("category ASC, type ASC").Find(&components).Error; err != nil {
		h.log.Error("list components failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch components"})
		return
	}
	c.JSON(http.StatusOK, components)
}

func (h *InventoryHandler) GetComponent(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component id"})
		return
	}

	var component models.Component
	if err := h.db.WithContext(c.Request.Context()).First(&component, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Component not found"})
			return
		}
		h.log.Error("get component failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch component"})
		return
	}
	c.JSON(http.StatusOK, component)
}

func (h *InventoryHandler) CreateComponent(c *gin.Context) {
	var req componentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity < 0 || req.AverageCost.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity and average_cost must not be negative"})
		return
	}

	component := models.Component{
		Category:    req.Category,
		Type:        strings.ToLower(req.Type),
		Quantity:    req.Quantity,
		AverageCost: req.AverageCost,
		TotalValue:  decimal.NewFromInt(int64(req.Quantity)).Mul(req.AverageCost),
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&component).Error; err != nil {
		h.log.Error("create component failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create component"})
		return
	}
	c.JSON(http.StatusCreated, component)
}

func (h *InventoryHandler) ListComponentPurchases(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component id"})
		return
	}

	var purchases []models.ComponentPurchase
	if err := h.db.WithContext(c.Request.Context()).
		Where("component_id = ?", id).
		Order("purchase_date DESC, created_at DESC").
		Find(&purchases).Error; err != nil {
		h.log.Error("list purchases failed", zap.Int64("component_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch purchases"})
		return
	}
	c.JSON(http.StatusOK, purchases)
}

// RecordPurchase applies the weighted-average cost update and appends the
// immutable ledger row, all in one transaction.
func (h *InventoryHandler) RecordPurchase(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid component id"})
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be greater than zero"})
		return
	}
	if !req.TotalPaid.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "total_paid must be greater than zero"})
		return
	}

	var purchase models.ComponentPurchase
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var component models.Component
		if err := tx.First(&component, id).Error; err != nil {
			return err
		}
		p, err := applyPurchase(tx, &component, req.Quantity, req.TotalPaid)
		if err != nil {
			return err
		}
		purchase = *p
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Component not found"})
			return
		}
		h.log.Error("record purchase failed", zap.Int64("component_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record purchase"})
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

// RecordProductPurchase is the product-scoped purchase entry point: the
// component is resolved through the product's derived key for the category.
func (h *InventoryHandler) RecordProductPurchase(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var req productPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be greater than zero"})
		return
	}
	if !req.TotalPaid.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "total_paid must be greater than zero"})
		return
	}

	var product models.Product
	if err := h.db.WithContext(c.Request.Context()).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.log.Error("get product failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record purchase"})
		return
	}

	var purchase models.ComponentPurchase
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		component, err := findComponent(tx, req.Category, componentKeyFor(product, req.Category))
		if err != nil {
			return err
		}
		if component == nil {
			return gorm.ErrRecordNotFound
		}
		p, err := applyPurchase(tx, component, req.Quantity, req.TotalPaid)
		if err != nil {
			return err
		}
		purchase = *p
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Component not found"})
			return
		}
		h.log.Error("record purchase failed", zap.Int64("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record purchase"})
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

// -- Helpers --

func parseID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func componentKeyFor(product models.Product, category string) string {
	switch category {
	case CategoryLids:
		return product.LidColor
	case CategoryBottles:
		return product.BottleType
	default:
		return product.Name
	}
}

func findComponent(tx *gorm.DB, category, key string) (*models.Component, error) {
	var component models.Component
	err := tx.Where("category = ? AND type = ?", category, strings.ToLower(key)).First(&component).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &component, nil
}

// applyPurchase folds a purchase into the component's running weighted-average
// cost, keeps total_value = quantity * average_cost, and appends the ledger row.
func applyPurchase(tx *gorm.DB, component *models.Component, quantity int, totalPaid decimal.Decimal) (*models.ComponentPurchase, error) {
	qty := decimal.NewFromInt(int64(quantity))
	costPerUnit := totalPaid.Div(qty)

	oldQty := decimal.NewFromInt(int64(component.Quantity))
	newQuantity := component.Quantity + quantity
	newQty := decimal.NewFromInt(int64(newQuantity))

	newAvgCost := oldQty.Mul(component.AverageCost).Add(qty.Mul(costPerUnit)).Div(newQty)
	newTotalValue := newQty.Mul(newAvgCost)

	component.Quantity = newQuantity
	component.AverageCost = newAvgCost
	component.TotalValue = newTotalValue
	if err := tx.Save(component).Error; err != nil {
		return nil, err
	}

	purchase := models.ComponentPurchase{
		ComponentID:  component.ID,
		PurchaseDate: time.Now().Format("2006-01-02"),
		Quantity:     quantity,
		TotalPaid:    totalPaid,
		CostPerUnit:  costPerUnit,
	}
	if err := tx.Create(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}
