package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

// InsertReceipt writes a receipt. A second receipt for the same order fails
// with ErrDuplicate through the orderId unique index.
func (m *Mongo) InsertReceipt(ctx context.Context, receipt models.PaymentReceipt) (primitive.ObjectID, error) {
	if receipt.ID.IsZero() {
		receipt.ID = primitive.NewObjectID()
	}
	if _, err := m.db.Collection(colReceipts).InsertOne(ctx, receipt); err != nil {
		return primitive.NilObjectID, translate(err)
	}
	return receipt.ID, nil
}

func (m *Mongo) CountReceipts(ctx context.Context, orderID primitive.ObjectID) (int64, error) {
	return m.db.Collection(colReceipts).CountDocuments(ctx, bson.M{"orderId": orderID})
}

func (m *Mongo) ListReceipts(ctx context.Context, orderID primitive.ObjectID) ([]models.PaymentReceipt, error) {
	cursor, err := m.db.Collection(colReceipts).Find(ctx, bson.M{"orderId": orderID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	receipts := make([]models.PaymentReceipt, 0)
	if err := cursor.All(ctx, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}
