package handlers

import (
	"expvar"
	"log/slog"
	"net/http"
	"time"

	"storemybottle-backend/ledger"
	"storemybottle-backend/models"
	"storemybottle-backend/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	Store       store.Store
	Users       UserDirectory
	Purchases   *ledger.Purchases
	Redemptions *ledger.Redemptions
	Logger      *slog.Logger
	CORSOrigins []string
	QRImageSize int
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", UserIDHeader, RequestIDHeader}
	router.Use(cors.New(corsConfig))

	catalogHandler := NewCatalogHandler(cfg.Store)
	purchaseHandler := NewPurchaseHandler(cfg.Purchases, cfg.Users, cfg.QRImageSize)
	redemptionHandler := NewRedemptionHandler(cfg.Redemptions, cfg.QRImageSize)
	userHandler := NewUserHandler(cfg.Users)
	adminHandler := NewAdminHandler(cfg.Store, cfg.Users, cfg.Purchases, cfg.Redemptions)

	router.GET("/health", func(c *gin.Context) {
		if err := cfg.Store.Ping(c.Request.Context()); err != nil {
			slog.ErrorContext(c.Request.Context(), "database ping failed", slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"timestamp": time.Now().Unix(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})
	router.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	api := router.Group("/api/v1")
	{
		// Public catalog
		api.GET("/venues", catalogHandler.ListVenues)
		api.GET("/venues/:id", catalogHandler.GetVenue)
		api.GET("/venues/:id/bottles", catalogHandler.ListVenueBottles)
		api.GET("/bottles/:id", catalogHandler.GetBottle)
		api.GET("/redemptions/peg-sizes", redemptionHandler.PegSizes)
	}

	authed := api.Group("", RequireAuth())
	{
		authed.GET("/me", userHandler.Me)
		authed.POST("/me/role", userHandler.SetOwnRole)
		authed.GET("/purchases/mine", purchaseHandler.ListMine)
		authed.GET("/purchases/:id", purchaseHandler.GetPurchase)
		authed.GET("/redemptions/mine", redemptionHandler.ListMine)
	}

	customer := authed.Group("", RequireRole(cfg.Users, models.RoleCustomer))
	{
		customer.POST("/purchases", purchaseHandler.CreatePurchase)
		customer.POST("/redemptions", redemptionHandler.RequestRedemption)
	}

	staff := authed.Group("", RequireRole(cfg.Users, models.RoleBartender, models.RoleAdmin))
	{
		staff.GET("/purchases/pending", purchaseHandler.ListPending)
		staff.POST("/purchases/:id/mark-paid", purchaseHandler.MarkPaid)
		staff.POST("/redemptions/scan", redemptionHandler.Scan)
	}

	admin := authed.Group("", RequireRole(cfg.Users, models.RoleAdmin))
	{
		admin.POST("/venues", catalogHandler.CreateVenue)
		admin.PUT("/venues/:id", catalogHandler.UpdateVenue)
		admin.DELETE("/venues/:id", catalogHandler.DeleteVenue)
		admin.GET("/bottles", catalogHandler.ListBottles)
		admin.POST("/bottles", catalogHandler.CreateBottle)
		admin.PUT("/bottles/:id", catalogHandler.UpdateBottle)
		admin.DELETE("/bottles/:id", catalogHandler.DeleteBottle)
		admin.POST("/redemptions/sweep", redemptionHandler.Sweep)

		admin.GET("/admin/dashboard", adminHandler.Dashboard)
		admin.GET("/admin/users", adminHandler.ListUsers)
		admin.PUT("/admin/users/:id/role", adminHandler.UpdateUserRole)
		admin.GET("/admin/purchases", adminHandler.ListPurchases)
		admin.GET("/admin/redemptions", adminHandler.ListRedemptions)
	}

	return router
}
