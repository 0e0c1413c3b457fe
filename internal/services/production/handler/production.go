package handler

import (
	"errors"
	"fmt"
	"math"
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
	categoryLids    = "lids"
	categoryBottles = "bottles"
	categoryLabels  = "labels"
)

var errMissingComponent = errors.New("missing component data")

type insufficientComponentsError struct {
	needed  int
	lids    int
	bottles int
	labels  *int
}

func (e *insufficientComponentsError) Error() string {
	msg := fmt.Sprintf("insufficient components: need %d of each, available: %d lids, %d bottles", e.needed, e.lids, e.bottles)
	if e.labels != nil {
		msg += fmt.Sprintf(", %d labels", *e.labels)
	}
	return msg
}

type ProductionHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewProductionHandler(db *gorm.DB, log *zap.Logger) *ProductionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductionHandler{db: db, log: log}
}

type quickBatchRequest struct {
	ProductID      int64  `json:"product_id" binding:"required"`
	Quantity       int    `json:"quantity"`
	ProductionDate string `json:"production_date"`
	Notes          string `json:"notes"`
}

type productBatchRequest struct {
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

type batchUpdateRequest struct {
	QuantityMade   int    `json:"quantity_made"`
	ProductionDate string `json:"production_date"`
	Notes          string `json:"notes"`
}

type recipeRequest struct {
	ProductID         int64                    `json:"product_id" binding:"required"`
	Ingredients       []models.RecipeIngredient `json:"ingredients"`
	OriginalBatchSize float64                  `json:"original_batch_size"`
	TotalRecipeWeight float64                  `json:"total_recipe_weight"`
}

// -- Reads --

func (h *ProductionHandler) ListBatches(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.ProductionBatch{})
	if pid := c.Query("product_id"); pid != "" {
		id, err := strconv.ParseInt(pid, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product_id filter"})
			return
		}
		query = query.Where("product_id = ?", id)
	}

	var batches []models.ProductionBatch
	if err := query.Order("production_date DESC, created_at DESC").Find(&batches).Error; err != nil {
		h.log.Error("list production batches failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch production batches"})
		return
	}
	c.JSON(http.StatusOK, batches)
}

func (h *ProductionHandler) GetBatch(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch id"})
		return
	}

	var batch models.ProductionBatch
	if err := h.db.WithContext(c.Request.Context()).First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Production batch not found"})
			return
		}
		h.log.Error("get production batch failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch production batch"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// -- Batch creation --

// CreateQuickBatch is the two-component flow: the batch needs matching lids
// and bottles but no label stock.
func (h *ProductionHandler) CreateQuickBatch(c *gin.Context) {
	var req quickBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.createBatch(c, req.ProductID, req.Quantity, req.ProductionDate, req.Notes, false)
}

// CreateProductBatch is the stricter product-detail flow: it additionally
// requires and consumes a labels component keyed by the product name.
func (h *ProductionHandler) CreateProductBatch(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var req productBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.createBatch(c, id, req.Quantity, "", req.Notes, true)
}

func (h *ProductionHandler) createBatch(c *gin.Context, productID int64, quantity int, date, notes string, requireLabels bool) {
	if quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be greater than zero"})
		return
	}
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "production_date must be YYYY-MM-DD"})
		return
	}

	var batch models.ProductionBatch
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			return err
		}
		b, err := applyBatch(tx, product, quantity, date, notes, requireLabels)
		if err != nil {
			return err
		}
		batch = *b
		return nil
	})
	if err != nil {
		h.respondBatchError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// applyBatch runs the stock reconciliation for one production run: verify
// component coverage up front, then consume components, raise the product's
// stock, and record the history row. Callers must invoke it inside a
// transaction so a failure rolls back every write.
func applyBatch(tx *gorm.DB, product models.Product, quantity int, date, notes string, requireLabels bool) (*models.ProductionBatch, error) {
	lidKey := strings.ToLower(product.LidColor)
	bottleKey := strings.ToLower(product.BottleType)
	labelKey := strings.ToLower(product.Name)

	lid, err := findComponent(tx, categoryLids, lidKey)
	if err != nil {
		return nil, err
	}
	bottle, err := findComponent(tx, categoryBottles, bottleKey)
	if err != nil {
		return nil, err
	}
	var label *models.Component
	if requireLabels {
		label, err = findComponent(tx, categoryLabels, labelKey)
		if err != nil {
			return nil, err
		}
	}

	if lid == nil || bottle == nil || (requireLabels && label == nil) {
		return nil, errMissingComponent
	}

	if lid.Quantity < quantity || bottle.Quantity < quantity || (label != nil && label.Quantity < quantity) {
		insufficient := &insufficientComponentsError{
			needed:  quantity,
			lids:    lid.Quantity,
			bottles: bottle.Quantity,
		}
		if label != nil {
			insufficient.labels = &label.Quantity
		}
		return nil, insufficient
	}

	componentsUsed := models.ComponentsUsed{
		categoryLids:    fmt.Sprintf("%s: %d", lidKey, quantity),
		categoryBottles: fmt.Sprintf("%s: %d", bottleKey, quantity),
	}
	consumed := []*models.Component{lid, bottle}
	if label != nil {
		componentsUsed[categoryLabels] = fmt.Sprintf("%s: %d", labelKey, quantity)
		consumed = append(consumed, label)
	}

	for _, component := range consumed {
		component.Quantity -= quantity
		component.TotalValue = decimal.NewFromInt(int64(component.Quantity)).Mul(component.AverageCost)
		if err := tx.Save(component).Error; err != nil {
			return nil, err
		}
	}

	if err := tx.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("current_stock", gorm.Expr("current_stock + ?", quantity)).Error; err != nil {
		return nil, err
	}

	batch := models.ProductionBatch{
		ProductionDate: date,
		ProductID:      product.ID,
		ProductName:    fmt.Sprintf("%s (%s)", product.Name, product.Size),
		QuantityMade:   quantity,
		ComponentsUsed: componentsUsed,
		Notes:          notes,
	}
	if err := tx.Create(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// -- Batch edit / delete --

// UpdateBatch applies only the quantity diff to the product's stock.
// Components consumed by the original run are NOT corrected; that asymmetry
// is inherited behavior, kept on purpose.
func (h *ProductionHandler) UpdateBatch(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch id"})
		return
	}

	var req batchUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.QuantityMade <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity_made must be greater than zero"})
		return
	}
	if req.ProductionDate != "" {
		if _, err := time.Parse("2006-01-02", req.ProductionDate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "production_date must be YYYY-MM-DD"})
			return
		}
	}

	var batch models.ProductionBatch
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&batch, id).Error; err != nil {
			return err
		}

		diff := req.QuantityMade - batch.QuantityMade
		if diff != 0 {
			if err := tx.Model(&models.Product{}).Where("id = ?", batch.ProductID).
				Update("current_stock", gorm.Expr("current_stock + ?", diff)).Error; err != nil {
				return err
			}
		}

		batch.QuantityMade = req.QuantityMade
		if req.ProductionDate != "" {
			batch.ProductionDate = req.ProductionDate
		}
		batch.Notes = req.Notes
		return tx.Save(&batch).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Production batch not found"})
			return
		}
		h.log.Error("update production batch failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update production batch"})
		return
	}
	c.JSON(http.StatusOK, batch)
}

// DeleteBatch reverses the batch's full stock effect before removing it.
func (h *ProductionHandler) DeleteBatch(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch id"})
		return
	}

	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var batch models.ProductionBatch
		if err := tx.First(&batch, id).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Product{}).Where("id = ?", batch.ProductID).
			Update("current_stock", gorm.Expr("current_stock - ?", batch.QuantityMade)).Error; err != nil {
			return err
		}

		return tx.Delete(&batch).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Production batch not found"})
			return
		}
		h.log.Error("delete production batch failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete production batch"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// -- Recipes --

// GetScaledRecipe returns a product's recipe, optionally scaled to a desired
// bottle count. Pure planning data; no stock effect.
func (h *ProductionHandler) GetScaledRecipe(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	var recipe models.Recipe
	if err := h.db.WithContext(c.Request.Context()).Where("product_id = ?", id).First(&recipe).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return
		}
		h.log.Error("get recipe failed", zap.Int64("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipe"})
		return
	}

	raw := c.Query("batch_size")
	if raw == "" {
		c.JSON(http.StatusOK, recipe)
		return
	}

	desired, err := strconv.ParseFloat(raw, 64)
	if err != nil || desired <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch_size must be a positive number"})
		return
	}
	if recipe.OriginalBatchSize <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Recipe has no original batch size"})
		return
	}

	factor := desired / recipe.OriginalBatchSize
	c.JSON(http.StatusOK, gin.H{
		"recipe":      recipe,
		"factor":      factor,
		"ingredients": scaleIngredients(recipe.Ingredients, factor),
	})
}

// CreateRecipe creates or replaces a product's recipe.
func (h *ProductionHandler) CreateRecipe(c *gin.Context) {
	var req recipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OriginalBatchSize <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "original_batch_size must be greater than zero"})
		return
	}

	var product models.Product
	if err := h.db.WithContext(c.Request.Context()).First(&product, req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.log.Error("get product failed", zap.Int64("id", req.ProductID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save recipe"})
		return
	}

	var recipe models.Recipe
	err := h.db.WithContext(c.Request.Context()).Where("product_id = ?", req.ProductID).First(&recipe).Error
	created := false
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		recipe = models.Recipe{ProductID: req.ProductID}
		created = true
	case err != nil:
		h.log.Error("get recipe failed", zap.Int64("product_id", req.ProductID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save recipe"})
		return
	}

	recipe.Ingredients = models.IngredientList(req.Ingredients)
	recipe.OriginalBatchSize = req.OriginalBatchSize
	recipe.TotalRecipeWeight = req.TotalRecipeWeight

	if err := h.db.WithContext(c.Request.Context()).Save(&recipe).Error; err != nil {
		h.log.Error("save recipe failed", zap.Int64("product_id", req.ProductID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save recipe"})
		return
	}
	if created {
		c.JSON(http.StatusCreated, recipe)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// scaleIngredients multiplies each amount by factor, rounded to one decimal.
func scaleIngredients(ingredients models.IngredientList, factor float64) models.IngredientList {
	scaled := make(models.IngredientList, len(ingredients))
	for i, ing := range ingredients {
		ing.Amount = roundTenth(ing.Amount * factor)
		scaled[i] = ing
	}
	return scaled
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func (h *ProductionHandler) respondBatchError(c *gin.Context, err error) {
	var insufficient *insufficientComponentsError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, errMissingComponent):
		c.JSON(http.StatusConflict, gin.H{"error": errMissingComponent.Error()})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{"error": insufficient.Error()})
	default:
		h.log.Error("create production batch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create production batch"})
	}
}

func parseID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func findComponent(tx *gorm.DB, category, key string) (*models.Component, error) {
	var component models.Component
	err := tx.Where("category = ? AND type = ?", category, key).First(&component).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &component, nil
}
