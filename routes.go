package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront/internal/handlers"
	"storefront/internal/middleware"
)

func (a *app) router() *gin.Engine {
	cfg := a.cfg
	db := a.db

	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.Use(middleware.Prometheus())
	r.Static(cfg.PublicBaseURL, cfg.PublicDir)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		if err := a.store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "exchangeRate": a.rates.EffectiveRate()})
	})

	userAuth := middleware.UserAuth(cfg.JWTSecret)

	r.POST("/auth/register", handlers.Register(db, cfg.JWTSecret, cfg.AccessTokenTTL))
	r.POST("/auth/login", handlers.Login(db, cfg.JWTSecret, cfg.AccessTokenTTL))
	r.GET("/auth/me", userAuth, handlers.GetMe(db))
	r.PUT("/auth/me", userAuth, handlers.UpdateMe(db))

	r.POST("/admin/login", handlers.AdminLogin(db, cfg.JWTSecret, cfg.AccessTokenTTL))

	r.GET("/products", handlers.GetProducts(db))
	r.GET("/products/:id", handlers.GetProduct(db))
	r.GET("/categories", handlers.GetCategories(db))
	r.GET("/payment-methods", handlers.GetPaymentMethods(db))
	r.GET("/exchange-rate", handlers.GetExchangeRate(a.rates))

	user := r.Group("/")
	user.Use(userAuth)
	{
		user.GET("/cart", handlers.GetCart(a.carts, a.rates))
		user.DELETE("/cart", handlers.ClearCart(a.carts))
		user.POST("/cart/items", handlers.AddCartItem(a.carts, a.rates))
		user.PUT("/cart/items/:productId", handlers.UpdateCartItem(a.carts, a.rates))
		user.DELETE("/cart/items/:productId", handlers.RemoveCartItem(a.carts, a.rates))

		user.POST("/checkout", handlers.Checkout(a.checkout, cfg.CheckoutTimeout))
		user.GET("/orders", handlers.GetMyOrders(a.store))
		user.POST("/orders/:id/receipt", handlers.SubmitOrderReceipt(a.checkout, cfg.CheckoutTimeout))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(cfg.JWTSecret))
	{
		admin.GET("/me", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

		admin.GET("/products", handlers.GetAllProducts(db))
		admin.POST("/products", handlers.CreateProduct(db, a.images))
		admin.PUT("/products/:id", handlers.UpdateProduct(db, a.images))
		admin.PATCH("/products/:id/toggle", handlers.ToggleProduct(db))
		admin.DELETE("/products/:id", handlers.DeleteProduct(db, a.images))

		admin.GET("/categories", handlers.GetAllCategories(db))
		admin.POST("/categories", handlers.CreateCategory(db))
		admin.PUT("/categories/:id", handlers.UpdateCategory(db))
		admin.DELETE("/categories/:id", handlers.DeleteCategory(db))

		admin.GET("/payment-methods", handlers.GetAllPaymentMethods(db))
		admin.POST("/payment-methods", handlers.CreatePaymentMethod(db))
		admin.PUT("/payment-methods/:id", handlers.UpdatePaymentMethod(db))
		admin.DELETE("/payment-methods/:id", handlers.DeletePaymentMethod(db))

		admin.GET("/orders", handlers.ListOrders(db))
		admin.GET("/orders/:id", handlers.GetOrderDetail(a.store))
		admin.PATCH("/orders/:id/status", handlers.UpdateOrderStatus(db, a.publisher))
		admin.DELETE("/orders/:id", handlers.DeleteOrder(a.store, a.images))
		admin.PUT("/receipts/:id/review", handlers.ReviewReceipt(db, a.publisher))

		admin.GET("/exchange-rate", handlers.AdminGetExchangeRate(a.rates))
		admin.PUT("/exchange-rate/manual", handlers.SetManualExchangeRate(a.rates))
		admin.POST("/exchange-rate/refresh", handlers.RefreshExchangeRate(a.rates))
	}

	return r
}
