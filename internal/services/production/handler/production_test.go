package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"bottleworks/internal/database/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Unique in-memory database per test to avoid cross-test collisions.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewProductionHandler(db, nil)
	r := gin.New()
	r.GET("/api/production", h.ListBatches)
	r.POST("/api/production", h.CreateQuickBatch)
	r.GET("/api/production/:id", h.GetBatch)
	r.PUT("/api/production/:id", h.UpdateBatch)
	r.DELETE("/api/production/:id", h.DeleteBatch)
	r.POST("/api/products/:id/batches", h.CreateProductBatch)
	r.GET("/api/products/:id/recipe", h.GetScaledRecipe)
	r.POST("/api/recipes", h.CreateRecipe)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) models.Product {
	t.Helper()
	product := models.Product{
		Name:         "Hot Sauce",
		Size:         "5oz",
		CurrentStock: stock,
		LidColor:     "Blue",
		BottleType:   "Glass",
		Price:        decimal.NewFromFloat(8.50),
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func seedComponent(t *testing.T, db *gorm.DB, category, typ string, quantity int, avgCost float64) models.Component {
	t.Helper()
	cost := decimal.NewFromFloat(avgCost)
	component := models.Component{
		Category:    category,
		Type:        typ,
		Quantity:    quantity,
		AverageCost: cost,
		TotalValue:  decimal.NewFromInt(int64(quantity)).Mul(cost),
	}
	if err := db.Create(&component).Error; err != nil {
		t.Fatalf("seed component: %v", err)
	}
	return component
}

func TestQuickBatchReconciliation(t *testing.T) {
	db := setupTestDB(t)
	r := newRouter(db)

	product := seedProduct(t, db, 0)
	lid := seedComponent(t, db, "lids", "blue", 20, 0.50)
	bottle := seedComponent(t, db, "bottles", "glass", 15, 1.25)

	w := doJSON(t, r, http.MethodPost, "/api/production", `{"product_id":1,"quantity":10}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", w.Code, w.Body.String())
	}

	var gotProduct models.Product
	if err := db.First(&gotProduct, product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotProduct.CurrentStock != 10 {
		t.Fatalf("expected stock 10 got %d", gotProduct.CurrentStock)
	}

	var gotLid, gotBottle models.Component
	db.First(&gotLid, lid.ID)
	db.First(&gotBottle, bottle.ID)
	if gotLid.Quantity != 10 {
		t.Fatalf("expected lid quantity 10 got %d", gotLid.Quantity)
	}
	if gotBottle.Quantity != 5 {
		t.Fatalf("expected bottle quantity 5 got %d", gotBottle.Quantity)
	}

	// total_value must follow quantity down.
	wantLidValue := decimal.NewFromInt(10).Mul(gotLid.AverageCost)
	if gotLid.TotalValue.Sub(wantLidValue).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
		t.Fatalf("lid total_value %s != quantity*average_cost %s", gotLid.TotalValue, wantLidValue)
	}

	var batches []models.ProductionBatch
	db.Find(&batches)
	if len(batches) != 1 {
		t.Fatalf("expected 1 production row got %d", len(batches))
	}
	if batches[0].QuantityMade != 10 || batches[0].ProductID != product.ID {
		t.Fatalf("unexpected batch row: %+v", batches[0])
	}
	if batches[0].ComponentsUsed["lids"] != "blue: 10" {
		t.Fatalf("unexpected components_used: %v", batches[0].ComponentsUsed)
	}
}

func TestQuickBatchInsufficientComponents(t *testing.T) {
	db := setupTestDB(t)
	r := newRouter(db)

	product := seedProduct(t, db, 0)
	seedComponent(t, db, "lids", "blue", 20, 0.50)
	seedComponent(t, db, "bottles", "glass", 5, 1.25)

	w := doJSON(t, r, http.MethodPost, "/api/production", `{"product_id":1,"quantity":10}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "5 bottles") {
		t.Fatalf("expected available counts in message, got %s", w.Body.String())
	}

	// Nothing may change.
	var gotProduct models.Product
	db.First(&gotProduct, product.ID)
	if gotProduct.CurrentStock != 0 {
		t.Fatalf("stock changed on rejected batch: %d", gotProduct.CurrentStock)
	}
	var components []models.Component
	db.Find(&components)
	for _, comp := range components {
		if comp.Quantity != 20 && comp.Quantity != 5 {
			t.Fatalf("component quantity changed: %+v", comp)
		}
	}
	var count int64
	db.Model(&models.ProductionBatch{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no production rows, got %d", count)
	}
}

func TestQuickBatchMissingComponent(t *testing.T) {
	db := setupTestDB(t)
	r := newRouter(db)

	seedProduct(t, db, 0)
	seedComponent(t, db, "lids", "blue", 20, 0.50)
	// No bottles component at all.

	w := doJSON(t, r, http.MethodPost, "/api/production", `{"product_id":1,"quantity":10}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "missing component data") {
		t.Fatalf("unexpected message: %s", w.Body.String())
	}
}

func TestQuickBatchRejectsNonPositiveQuantity(t *testing.T) {
	db := setupTestDB(t)
	r := newRouter(db)
	seedProduct(t, db, 0)

	w := doJSON(t, r, http.MethodPost, "/api/production", `{"product_id":1,"quantity":0}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestProductBatchRequiresLabels(t *testing.T) {
	db := setupTestDB(t)
	r := newRouter(db)

	product := seedProduct(t, db, 0)
	seedComponent(t, db, "lids", "blue", 20, 0.50)
	seedComponent(t, db, "bottles", "glass", 20, 1.25)

	// Strict flow without a labels component is rejected.
	w := doJSON(t, r, http.MethodPost, "/api/products/1/batches", `{"quantity":10}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", w.Code, w.Body.String())
	}

	label := seedComponent(t, db, "labels", "hot sauce", 12, 0.10)
	w = doJSON(t, r, http.MethodPost, "/api/products/1/batches", `{"quantity":10}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", w.Code, w.Body.String())
	}

	var gotLabel models.Component
	db.First(&gotLabel, label.ID)
	if gotLabel.Quantity != 2 {
		t.Fatalf("expected label quantity 2 got %d", gotLabel.Quantity)
	}
	var gotProduct models.Product
	db.First(&gotProduct, product.ID)
	if gotProduct.CurrentStock != 10 {
		t.Fatalf("expected stock 10 got %d", gotProduct.CurrentStock)
	}
}

func TestUpdateBatchAppliesQuantityDiffOnly(t *testing.T) {
	db := setupTestDB(t)
	r := newRouter(db)

	product := seedProduct(t, db, 0)
	lid := seedComponent(t, db, "lids", "blue", 20, 0.50)
	bottle := seedComponent(t, db, "bottles", "glass", 20, 1.25)

	w := doJSON(t, r, http.MethodPost, "/api/production", `{"product_id":1,"quantity":10}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create batch: %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPut, "/api/production/1", `{"quantity_made":15}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}

	var gotProduct models.Product
	db.First(&gotProduct, product.ID)
	if gotProduct.CurrentStock != 15 {
		t.Fatalf("expected stock 15 got %d", gotProduct.CurrentStock)
	}

	// Component stock is intentionally untouched by edits.
	var gotLid, gotBottle models.Component
	db.First(&gotLid, lid.ID)
	db.First(&gotBottle, bottle.ID)
	if gotLid.Quantity != 10 || gotBottle.Quantity != 10 {
		t.Fatalf("component quantities changed on edit: lids=%d bottles=%d", gotLid.Quantity, gotBottle.Quantity)
	}

	var batch models.ProductionBatch
	db.First(&batch, 1)
	if batch.QuantityMade != 15 {
		t.Fatalf("expected quantity_made 15 got %d", batch.QuantityMade)
	}
}

func TestDeleteBatchRestoresStock(t *testing.T) {
	db := setupTestDB(t)
	r := newRouter(db)

	product := seedProduct(t, db, 0)
	seedComponent(t, db, "lids", "blue", 20, 0.50)
	seedComponent(t, db, "bottles", "glass", 20, 1.25)

	doJSON(t, r, http.MethodPost, "/api/production", `{"product_id":1,"quantity":10}`)

	w := doJSON(t, r, http.MethodDelete, "/api/production/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}

	var gotProduct models.Product
	db.First(&gotProduct, product.ID)
	if gotProduct.CurrentStock != 0 {
		t.Fatalf("expected stock 0 got %d", gotProduct.CurrentStock)
	}
	var count int64
	db.Model(&models.ProductionBatch{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected batch removed, got %d rows", count)
	}
}

func TestBatchNotFound(t *testing.T) {
	db := setupTestDB(t)
	r := newRouter(db)

	if w := doJSON(t, r, http.MethodPut, "/api/production/99", `{"quantity_made":5}`); w.Code != http.StatusNotFound {
		t.Fatalf("update: expected 404 got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/api/production/99", ""); w.Code != http.StatusNotFound {
		t.Fatalf("delete: expected 404 got %d", w.Code)
	}
}

func TestScaleIngredients(t *testing.T) {
	ingredients := models.IngredientList{
		{Name: "vinegar", Amount: 3.33, Unit: "cups"},
		{Name: "peppers", Amount: 2.0, Unit: "lbs"},
	}
	scaled := scaleIngredients(ingredients, 2.5)
	if scaled[0].Amount != 8.3 {
		t.Fatalf("expected 8.3 got %v", scaled[0].Amount)
	}
	if scaled[1].Amount != 5.0 {
		t.Fatalf("expected 5.0 got %v", scaled[1].Amount)
	}
	// Input untouched.
	if ingredients[0].Amount != 3.33 {
		t.Fatalf("input mutated: %v", ingredients[0].Amount)
	}
}

func TestGetScaledRecipe(t *testing.T) {
	db := setupTestDB(t)
	r := newRouter(db)

	seedProduct(t, db, 0)
	w := doJSON(t, r, http.MethodPost, "/api/recipes",
		`{"product_id":1,"original_batch_size":10,"total_recipe_weight":12.5,"ingredients":[{"name":"vinegar","amount":4,"unit":"cups"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create recipe: expected 201 got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/products/1/recipe?batch_size=25", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Factor      float64                 `json:"factor"`
		Ingredients []models.RecipeIngredient `json:"ingredients"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Factor != 2.5 {
		t.Fatalf("expected factor 2.5 got %v", resp.Factor)
	}
	if len(resp.Ingredients) != 1 || resp.Ingredients[0].Amount != 10.0 {
		t.Fatalf("unexpected scaled ingredients: %+v", resp.Ingredients)
	}

	// No recipe for an unknown product.
	if w := doJSON(t, r, http.MethodGet, "/api/products/42/recipe", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}
