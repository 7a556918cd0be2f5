package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/restitch/marketplace/internal/handlers"
	mwauth "github.com/restitch/marketplace/internal/middleware/auth"
	"github.com/restitch/marketplace/internal/ratelimit"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	CartHandler    *handlers.CartHandler
	OrderHandler   *handlers.OrderHandler
	SearchHandler  *handlers.SearchHandler
	Limiter        *ratelimit.Limiter
	JWTSecret      []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.Logout)
	v1.GET("/search", d.SearchHandler.Search)

	v1.POST("/webhooks/payment", d.OrderHandler.PaymentWebhook)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	login := mwauth.RequireLogin(d.JWTSecret)

	listings := v1.Group("/products", login)
	listings.POST("", d.ProductHandler.CreateProduct)
	listings.PATCH("/:id", d.ProductHandler.PatchProduct)
	listings.DELETE("/:id", d.ProductHandler.DeleteProduct)

	limited := d.Limiter.Middleware()

	cart := v1.Group("/cart", login, limited)
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("", d.CartHandler.AddToCart)
	cart.DELETE("/:productID", d.CartHandler.RemoveFromCart)
	cart.PATCH("/clear", d.CartHandler.ClearCart)

	orders := v1.Group("/orders", login, limited)
	orders.POST("/checkout", d.OrderHandler.Checkout)
	orders.GET("", d.OrderHandler.ListOrders)
	orders.GET("/:id", d.OrderHandler.GetOrder)
	orders.PUT("/:id", d.OrderHandler.UpdateOrder)
	orders.DELETE("/:id", d.OrderHandler.CancelOrder)
}
