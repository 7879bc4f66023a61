package handlers

import (
	"errors"

	"storefront/internal/models"
)

// A product is on sale when its flag is set and the pre-sale price is above
// the selling price. Price is always what the shopper pays.

type saleUpdateInput struct {
	Price         *float64
	IsOnSale      *bool
	OriginalPrice *float64
}

type saleUpdateResult struct {
	Price              float64
	IsOnSale           bool
	OriginalPrice      *float64
	SetIsOnSale        bool
	SetOriginalPrice   bool
	ClearOriginalPrice bool
}

func isProductOnSale(price float64, onSale bool, originalPrice *float64) bool {
	return onSale && originalPrice != nil && price > 0 && *originalPrice > price
}

func validateSaleFields(price float64, onSale bool, originalPrice *float64) error {
	if !onSale {
		return nil
	}
	if originalPrice == nil {
		return errors.New("originalPrice is required when isOnSale is true")
	}
	if *originalPrice <= 0 {
		return errors.New("originalPrice must be greater than 0")
	}
	if *originalPrice <= price {
		return errors.New("originalPrice must be greater than price")
	}
	return nil
}

func resolveSaleUpdate(existing models.Product, input saleUpdateInput) (saleUpdateResult, error) {
	result := saleUpdateResult{
		Price:         existing.Price,
		IsOnSale:      existing.IsOnSale,
		OriginalPrice: existing.OriginalPrice,
	}

	if input.Price != nil {
		result.Price = *input.Price
	}

	if input.IsOnSale != nil {
		result.IsOnSale = *input.IsOnSale
		result.SetIsOnSale = true
		if !*input.IsOnSale {
			result.OriginalPrice = nil
			result.ClearOriginalPrice = existing.OriginalPrice != nil
		}
	}

	if input.OriginalPrice != nil && result.IsOnSale {
		value := *input.OriginalPrice
		result.OriginalPrice = &value
		result.SetOriginalPrice = true
		result.ClearOriginalPrice = false
	}

	if err := validateSaleFields(result.Price, result.IsOnSale, result.OriginalPrice); err != nil {
		return saleUpdateResult{}, err
	}

	return result, nil
}
