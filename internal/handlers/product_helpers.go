package handlers

import (
	"context"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
	"storefront/internal/sanitize"
)

// normalizeProductDocument coerces rows written by older admin forms, where
// numbers could arrive as strings, before decoding into a Product.
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	for _, key := range []string{"price", "rating"} {
		raw[key] = sanitize.NumericOrZero(raw[key])
	}
	for _, key := range []string{"stock", "reviewsCount"} {
		raw[key] = int(sanitize.NumericOrZero(raw[key]))
	}

	if val, ok := raw["originalPrice"]; ok && val != nil {
		if original := sanitize.NumericOrZero(val); original > 0 {
			raw["originalPrice"] = original
		} else {
			delete(raw, "originalPrice")
		}
	}

	switch typed := raw["isOnSale"].(type) {
	case bool:
	case string:
		raw["isOnSale"] = typed == "true"
	default:
		raw["isOnSale"] = false
	}

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := bson.Unmarshal(data, &p); err != nil {
		return models.Product{}, err
	}

	p.Name = sanitize.TrimmedOr(p.Name, defaultProductName)
	p.IsOnSale = isProductOnSale(p.Price, p.IsOnSale, p.OriginalPrice)
	p.InStock = p.Stock > 0

	return p, nil
}

func decodeProducts(ctx context.Context, cursor *mongo.Cursor) ([]models.Product, error) {
	products := make([]models.Product, 0)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			return nil, err
		}

		products = append(products, product)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// searchFilter matches the term case-insensitively against each field.
func searchFilter(term string, fields ...string) bson.A {
	pattern := regexp.QuoteMeta(strings.TrimSpace(term))
	or := bson.A{}
	for _, field := range fields {
		or = append(or, bson.M{field: bson.M{"$regex": pattern, "$options": "i"}})
	}
	return or
}
