package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bottleworks/config"
	"bottleworks/internal/database"
	"bottleworks/internal/database/models"
	"bottleworks/internal/server/middleware"
	dashboardhandler "bottleworks/internal/services/dashboard/handler"
	inventoryhandler "bottleworks/internal/services/inventory/handler"
	productionhandler "bottleworks/internal/services/production/handler"
	saleshandler "bottleworks/internal/services/sales/handler"
	"bottleworks/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	baseLogger := logger.Must(logger.New())
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	// Money fields serialize as JSON numbers, matching what the frontend expects.
	decimal.MarshalJSONWithoutQuotes = true

	db, err := database.NewConnection(cfg.DB.DSN)
	if err != nil {
		baseLogger.Fatal("failed to connect to db", zap.Error(err))
	}
	if err := models.Migrate(db); err != nil {
		baseLogger.Fatal("failed to migrate database", zap.Error(err))
	}

	inventoryHandler := inventoryhandler.NewInventoryHandler(db, baseLogger.Named("handlers.inventory"))
	productionHandler := productionhandler.NewProductionHandler(db, baseLogger.Named("handlers.production"))
	salesHandler := saleshandler.NewSalesHandler(db, baseLogger.Named("handlers.sales"))
	dashboardHandler := dashboardhandler.NewDashboardHandler(db, baseLogger.Named("handlers.dashboard"), cfg.Stock.LowStockThreshold)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(baseLogger.Named("http")))
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(cfg.Server.RateLimit))

	api := r.Group("/api")
	{
		products := api.Group("/products")
		{
			products.GET("", inventoryHandler.ListProducts)
			products.POST("", inventoryHandler.CreateProduct)
			products.GET("/:id", inventoryHandler.GetProduct)
			products.PUT("/:id", inventoryHandler.UpdateProduct)
			products.DELETE("/:id", inventoryHandler.DeleteProduct)
			products.GET("/:id/components", inventoryHandler.GetProductComponents)
			products.POST("/:id/components", inventoryHandler.RecordProductPurchase)
			products.POST("/:id/batches", productionHandler.CreateProductBatch)
			products.GET("/:id/recipe", productionHandler.GetScaledRecipe)
		}

		components := api.Group("/components")
		{
			components.GET("", inventoryHandler.ListComponents)
			components.POST("", inventoryHandler.CreateComponent)
			components.GET("/:id", inventoryHandler.GetComponent)
			components.GET("/:id/purchases", inventoryHandler.ListComponentPurchases)
			components.POST("/:id/purchases", inventoryHandler.RecordPurchase)
		}

		sales := api.Group("/sales")
		{
			sales.GET("/events", salesHandler.ListEvents)
			sales.POST("/events", salesHandler.CreateEvent)
			sales.GET("/events/:id", salesHandler.GetEvent)
			sales.PUT("/events/:id", salesHandler.UpdateEvent)
			sales.DELETE("/events/:id", salesHandler.DeleteEvent)
			sales.GET("/items", salesHandler.ListItems)
		}

		production := api.Group("/production")
		{
			production.GET("", productionHandler.ListBatches)
			production.POST("", productionHandler.CreateQuickBatch)
			production.GET("/:id", productionHandler.GetBatch)
			production.PUT("/:id", productionHandler.UpdateBatch)
			production.DELETE("/:id", productionHandler.DeleteBatch)
		}

		dashboard := api.Group("/dashboard")
		{
			dashboard.GET("/stats", dashboardHandler.GetStats)
			dashboard.GET("/notes", dashboardHandler.GetNotes)
			dashboard.POST("/notes", dashboardHandler.SaveNotes)
			dashboard.PUT("/notes/:id", dashboardHandler.UpdateNotes)
		}

		api.POST("/recipes", productionHandler.CreateRecipe)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
