package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

// FindProduct returns an active product.
func (m *Mongo) FindProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var product models.Product
	err := m.db.Collection(colProducts).FindOne(ctx, bson.M{
		"_id":      id,
		"isActive": bson.M{"$ne": false},
	}).Decode(&product)
	if err != nil {
		return models.Product{}, translate(err)
	}
	product.InStock = product.Stock > 0
	return product, nil
}

// FindPaymentMethod returns an active payment method.
func (m *Mongo) FindPaymentMethod(ctx context.Context, id primitive.ObjectID) (models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := m.db.Collection(colPaymentMethods).FindOne(ctx, bson.M{
		"_id":      id,
		"isActive": true,
	}).Decode(&method)
	return method, translate(err)
}
