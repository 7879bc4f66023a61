package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/cart"
	"storefront/internal/exchangerate"
	"storefront/internal/models"
)

type CartService interface {
	Get(ctx context.Context, userID primitive.ObjectID) (models.Cart, error)
	AddItem(ctx context.Context, userID, productID primitive.ObjectID, quantity int) (models.Cart, error)
	UpdateQuantity(ctx context.Context, userID, productID primitive.ObjectID, quantity int) (models.Cart, error)
	RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) (models.Cart, error)
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

// RateReader is the cached effective rate; reading it never fetches.
type RateReader interface {
	EffectiveRate() float64
}

type AddCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  *int   `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type cartResponse struct {
	Items        []models.CartLine `json:"items"`
	TotalItems   int               `json:"totalItems"`
	TotalUSD     float64           `json:"totalUsd"`
	TotalLocal   float64           `json:"totalLocal"`
	ExchangeRate float64           `json:"exchangeRate"`
}

func toCartResponse(ct models.Cart, rate float64) cartResponse {
	items := ct.Lines
	if items == nil {
		items = []models.CartLine{}
	}
	total := ct.TotalPrice()
	return cartResponse{
		Items:        items,
		TotalItems:   ct.TotalItems(),
		TotalUSD:     total.InexactFloat64(),
		TotalLocal:   exchangerate.Convert(total.InexactFloat64(), rate).InexactFloat64(),
		ExchangeRate: rate,
	}
}

func respondCartError(c *gin.Context, route string, err error) {
	switch {
	case errors.Is(err, cart.ErrProductNotFound):
		respondWithError(c, http.StatusNotFound, route, "product not found")
	case errors.Is(err, cart.ErrOutOfStock):
		respondWithError(c, http.StatusConflict, route, "product out of stock")
	case errors.Is(err, models.ErrInvalidQuantity):
		respondWithError(c, http.StatusBadRequest, route, err.Error())
	case errors.Is(err, models.ErrLineNotFound):
		respondWithError(c, http.StatusNotFound, route, err.Error())
	default:
		respondWithError(c, http.StatusInternalServerError, route, "cart unavailable")
	}
}

func GetCart(carts CartService, rates RateReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /cart"
		defer handlePanic(c, route)

		userID, ok := userIDFromContext(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		ct, err := carts.Get(c.Request.Context(), userID)
		if err != nil {
			respondCartError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, toCartResponse(ct, rates.EffectiveRate()))
	}
}

func AddCartItem(carts CartService, rates RateReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /cart/items"
		defer handlePanic(c, route)

		userID, ok := userIDFromContext(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		var req AddCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		productID, err := primitive.ObjectIDFromHex(req.ProductID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}
		quantity := 1
		if req.Quantity != nil {
			quantity = *req.Quantity
		}

		ct, err := carts.AddItem(c.Request.Context(), userID, productID, quantity)
		if err != nil {
			respondCartError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, toCartResponse(ct, rates.EffectiveRate()))
	}
}

// UpdateCartItem sets a line's quantity; zero or less removes the line.
func UpdateCartItem(carts CartService, rates RateReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /cart/items/:productId"
		defer handlePanic(c, route)

		userID, ok := userIDFromContext(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}
		productID, ok := pathObjectID(c, route, "productId")
		if !ok {
			return
		}

		var req UpdateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ct, err := carts.UpdateQuantity(c.Request.Context(), userID, productID, *req.Quantity)
		if err != nil {
			respondCartError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, toCartResponse(ct, rates.EffectiveRate()))
	}
}

func RemoveCartItem(carts CartService, rates RateReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /cart/items/:productId"
		defer handlePanic(c, route)

		userID, ok := userIDFromContext(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}
		productID, ok := pathObjectID(c, route, "productId")
		if !ok {
			return
		}

		ct, err := carts.RemoveItem(c.Request.Context(), userID, productID)
		if err != nil {
			respondCartError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, toCartResponse(ct, rates.EffectiveRate()))
	}
}

func ClearCart(carts CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /cart"
		defer handlePanic(c, route)

		userID, ok := userIDFromContext(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		if err := carts.Clear(c.Request.Context(), userID); err != nil {
			respondCartError(c, route, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
