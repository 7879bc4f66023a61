package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

// InsertOrder writes the order header and returns the generated id.
func (m *Mongo) InsertOrder(ctx context.Context, order models.Order) (primitive.ObjectID, error) {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := m.db.Collection(colOrders).InsertOne(ctx, order); err != nil {
		return primitive.NilObjectID, translate(err)
	}
	return order.ID, nil
}

func (m *Mongo) InsertOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(items))
	for _, item := range items {
		if item.ID.IsZero() {
			item.ID = primitive.NewObjectID()
		}
		docs = append(docs, item)
	}
	_, err := m.db.Collection(colOrderItems).InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return translate(err)
}

func (m *Mongo) FindOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	var order models.Order
	err := m.db.Collection(colOrders).FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	return order, translate(err)
}

func (m *Mongo) ListOrderItems(ctx context.Context, orderID primitive.ObjectID) ([]models.OrderItem, error) {
	cursor, err := m.db.Collection(colOrderItems).Find(ctx, bson.M{"orderId": orderID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]models.OrderItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (m *Mongo) ListOrdersByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	cursor, err := m.db.Collection(colOrders).Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// DeleteOrder removes an order with its items and receipts. Children go
// first so a failure never leaves items pointing at a missing header.
func (m *Mongo) DeleteOrder(ctx context.Context, id primitive.ObjectID) error {
	if _, err := m.db.Collection(colOrderItems).DeleteMany(ctx, bson.M{"orderId": id}); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	if _, err := m.db.Collection(colReceipts).DeleteMany(ctx, bson.M{"orderId": id}); err != nil {
		return fmt.Errorf("delete receipts: %w", err)
	}
	res, err := m.db.Collection(colOrders).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
