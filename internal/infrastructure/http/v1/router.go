// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"retailcore/internal/domain/audit"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/domain/orders/purchase"
	"retailcore/internal/domain/orders/transfer"
	"retailcore/internal/domain/pos"
	"retailcore/internal/domain/returns"
	"retailcore/internal/domain/shifts"
	"retailcore/internal/infrastructure/http/v1/handlers"
	"retailcore/internal/infrastructure/http/v1/middleware"
	"retailcore/pkg/logger"
)

// RouterConfig wires constructed services into the HTTP surface.
type RouterConfig struct {
	// Pool is used for readiness checks and pool statistics.
	Pool *pgxpool.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// TokenValidator for bearer token validation.
	TokenValidator middleware.TokenValidator

	// AuditRecorder persists workflow actions. Optional.
	AuditRecorder audit.Recorder

	Engine    ledger.Engine
	Purchases *purchase.Service
	Transfers *transfer.Service
	Pos       *pos.Service
	Returns   *returns.Service
	Shifts    *shifts.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler(cfg.AuditRecorder)

	// API v1, bearer token required
	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.Auth(cfg.TokenValidator))
	{
		registerStockRoutes(apiV1, base, cfg)
		registerPurchaseRoutes(apiV1, base, cfg)
		registerTransferRoutes(apiV1, base, cfg)
		registerPosRoutes(apiV1, base, cfg)
		registerReturnsRoutes(apiV1, base, cfg)
		registerShiftRoutes(apiV1, base, cfg)
		registerAuditRoutes(apiV1, base, cfg)
	}

	return router
}

func registerStockRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewStockHandler(base, cfg.Engine)

	stock := rg.Group("/stock")
	stock.GET("/:storeId/balances", handler.ListBalances)
	stock.GET("/:storeId/balances/:variantId", handler.GetBalance)
	stock.GET("/movements/:variantId", handler.Movements)
	stock.POST("/receive", handler.Receive)
	stock.POST("/adjust", middleware.RequireRole("manager"), handler.Adjust)
}

func registerPurchaseRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewPurchaseHandler(base, cfg.Purchases)

	orders := rg.Group("/purchase-orders")
	orders.GET("", handler.List)
	orders.POST("", handler.Create)
	orders.GET("/:id", handler.Get)
	orders.PUT("/:id/items", handler.UpdateItems)
	orders.POST("/:id/submit", handler.Submit)
	orders.POST("/:id/approve", middleware.RequireRole("manager"), handler.Approve)
	orders.POST("/:id/cancel", handler.Cancel)
	orders.POST("/:id/receive", handler.Receive)
}

func registerTransferRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewTransferHandler(base, cfg.Transfers)

	transfers := rg.Group("/transfers")
	transfers.GET("", handler.List)
	transfers.POST("", handler.Create)
	transfers.GET("/:id", handler.Get)
	transfers.POST("/:id/dispatch", handler.Dispatch)
	transfers.POST("/:id/receive", handler.Receive)
	transfers.POST("/:id/cancel", handler.Cancel)
}

func registerPosRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewPosHandler(base, cfg.Pos)

	posGroup := rg.Group("/pos")
	posGroup.POST("/checkout", handler.Checkout)
	posGroup.POST("/holds", handler.Hold)
	posGroup.POST("/holds/sweep", handler.SweepHolds)
	posGroup.POST("/holds/:id/resume", handler.Resume)
	posGroup.POST("/holds/:id/cancel", handler.CancelHold)
	posGroup.GET("/invoices", handler.ListInvoices)
	posGroup.GET("/invoices/:id", handler.GetInvoice)
}

func registerReturnsRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewReturnsHandler(base, cfg.Returns)

	refunds := rg.Group("/refunds")
	refunds.GET("", handler.List)
	refunds.POST("", handler.Create)
	refunds.GET("/:id", handler.Get)
	refunds.POST("/:id/approve", middleware.RequireRole("manager"), handler.Approve)
	refunds.POST("/:id/reject", middleware.RequireRole("manager"), handler.Reject)
}

func registerShiftRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewShiftsHandler(base, cfg.Shifts)

	shiftGroup := rg.Group("/shifts")
	shiftGroup.GET("", handler.List)
	shiftGroup.POST("", handler.Open)
	shiftGroup.GET("/:id", handler.Get)
	shiftGroup.POST("/:id/close", handler.Close)
}

func registerAuditRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.AuditRecorder == nil {
		return
	}

	handler := handlers.NewAuditHandler(base, cfg.AuditRecorder)
	rg.GET("/audit/:entityType/:id", middleware.RequireRole("manager"), handler.History)
}
