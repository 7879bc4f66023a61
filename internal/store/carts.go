package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

func (m *Mongo) LoadCart(ctx context.Context, userID primitive.ObjectID) (models.Cart, error) {
	var cart models.Cart
	err := m.db.Collection(colCarts).FindOne(ctx, bson.M{"userId": userID}).Decode(&cart)
	return cart, translate(err)
}

func (m *Mongo) SaveCart(ctx context.Context, cart models.Cart) error {
	_, err := m.db.Collection(colCarts).ReplaceOne(ctx,
		bson.M{"userId": cart.UserID},
		cart,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (m *Mongo) DeleteCart(ctx context.Context, userID primitive.ObjectID) error {
	_, err := m.db.Collection(colCarts).DeleteOne(ctx, bson.M{"userId": userID})
	return err
}
