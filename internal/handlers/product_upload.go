package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/sanitize"
	"storefront/internal/storage"
)

const defaultProductName = "Producto sin nombre"

// ProductInput is a create or update form. The *Set flags record which fields
// the client actually sent.
type ProductInput struct {
	Name             string
	NameSet          bool
	Description      string
	DescriptionSet   bool
	Price            float64
	PriceSet         bool
	OriginalPrice    float64
	OriginalPriceSet bool
	IsOnSale         bool
	IsOnSaleSet      bool
	CategoryID       string
	CategoryIDSet    bool
	Stock            int
	StockSet         bool
	IsActive         bool
	IsActiveSet      bool
	Image            *multipart.FileHeader
}

type productJSONRequest struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	Price         *float64 `json:"price"`
	OriginalPrice *float64 `json:"originalPrice"`
	IsOnSale      *bool    `json:"isOnSale"`
	CategoryID    *string  `json:"categoryId"`
	Stock         *int     `json:"stock"`
	IsActive      *bool    `json:"isActive"`
}

func parseProductRequest(c *gin.Context) (ProductInput, error) {
	if strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data") {
		return parseMultipartProductRequest(c)
	}

	var req productJSONRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ProductInput{}, err
	}

	input := ProductInput{}
	if req.Name != nil {
		input.Name, input.NameSet = strings.TrimSpace(*req.Name), true
	}
	if req.Description != nil {
		input.Description, input.DescriptionSet = strings.TrimSpace(*req.Description), true
	}
	if req.Price != nil {
		input.Price, input.PriceSet = sanitize.NumericOrZero(*req.Price), true
	}
	if req.OriginalPrice != nil {
		input.OriginalPrice, input.OriginalPriceSet = sanitize.NumericOrZero(*req.OriginalPrice), true
	}
	if req.IsOnSale != nil {
		input.IsOnSale, input.IsOnSaleSet = *req.IsOnSale, true
	}
	if req.CategoryID != nil {
		input.CategoryID, input.CategoryIDSet = strings.TrimSpace(*req.CategoryID), true
	}
	if req.Stock != nil {
		input.Stock, input.StockSet = *req.Stock, true
	}
	if req.IsActive != nil {
		input.IsActive, input.IsActiveSet = *req.IsActive, true
	}
	return input, nil
}

func parseMultipartProductRequest(c *gin.Context) (ProductInput, error) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		return ProductInput{}, err
	}

	input := ProductInput{}

	if value, ok := lastPostForm(c, "name"); ok {
		input.Name, input.NameSet = strings.TrimSpace(value), true
	}
	if value, ok := lastPostForm(c, "description"); ok {
		input.Description, input.DescriptionSet = strings.TrimSpace(value), true
	}
	if value, ok := lastPostForm(c, "categoryId"); ok {
		input.CategoryID, input.CategoryIDSet = strings.TrimSpace(value), true
	}

	// Numbers go through the same coercion the checkout uses: garbage becomes 0
	// and is then rejected by the range checks.
	if value, ok := lastPostForm(c, "price"); ok {
		input.Price, input.PriceSet = sanitize.NumericOrZero(value), true
	}
	if value, ok := lastPostForm(c, "originalPrice"); ok && strings.TrimSpace(value) != "" {
		input.OriginalPrice, input.OriginalPriceSet = sanitize.NumericOrZero(value), true
	}
	if value, ok := lastPostForm(c, "stock"); ok {
		input.Stock, input.StockSet = int(sanitize.NumericOrZero(value)), true
	}

	if value, ok := lastPostForm(c, "isOnSale"); ok {
		parsed, err := parseBoolValue(value)
		if err != nil {
			return ProductInput{}, err
		}
		input.IsOnSale, input.IsOnSaleSet = parsed, true
	}
	if value, ok := lastPostForm(c, "isActive"); ok {
		parsed, err := parseBoolValue(value)
		if err != nil {
			return ProductInput{}, err
		}
		input.IsActive, input.IsActiveSet = parsed, true
	}

	file, err := c.FormFile("image")
	if err == nil {
		input.Image = file
	} else if !errors.Is(err, http.ErrMissingFile) {
		return ProductInput{}, err
	}

	return input, nil
}

// lastPostForm returns the last value of a repeated form field; checkbox
// widgets send a hidden "false" before the checked "true".
func lastPostForm(c *gin.Context, key string) (string, bool) {
	values, ok := c.GetPostFormArray(key)
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[len(values)-1], true
}

func parseBoolValue(value string) (bool, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "on" {
		return true, nil
	}
	return strconv.ParseBool(value)
}

func respondUploadError(c *gin.Context, route string, err error) {
	switch {
	case errors.Is(err, storage.ErrImageTooLarge):
		respondWithError(c, http.StatusBadRequest, route, "image file too large (max 5MB)")
	case errors.Is(err, storage.ErrNotAnImage):
		respondWithError(c, http.StatusBadRequest, route, "only image files are allowed")
	default:
		respondWithError(c, http.StatusBadGateway, route, "image upload failed")
	}
}
