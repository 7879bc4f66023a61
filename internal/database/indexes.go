package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func storefrontIndexes() []collectionIndexes {
	return []collectionIndexes{
		{
			collection: "profiles",
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("email_unique").SetUnique(true),
			}},
		},
		{
			collection: "categories",
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetName("name_unique").SetUnique(true),
			}},
		},
		{
			collection: "products",
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "createdAt", Value: -1}},
					Options: options.Index().SetName("createdAt_desc"),
				},
				{
					Keys:    bson.D{{Key: "categoryId", Value: 1}},
					Options: options.Index().SetName("categoryId_index"),
				},
			},
		},
		{
			collection: "orders",
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "userId", Value: 1}},
					Options: options.Index().SetName("userId_index"),
				},
				{
					Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
					Options: options.Index().SetName("status_createdAt"),
				},
			},
		},
		{
			collection: "order_items",
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "orderId", Value: 1}},
				Options: options.Index().SetName("orderId_index"),
			}},
		},
		{
			collection: "payment_receipts",
			models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "orderId", Value: 1}},
					Options: options.Index().SetName("orderId_unique").SetUnique(true),
				},
				{
					Keys:    bson.D{{Key: "status", Value: 1}},
					Options: options.Index().SetName("status_index"),
				},
			},
		},
		{
			collection: "carts",
			models: []mongo.IndexModel{{
				Keys:    bson.D{{Key: "userId", Value: 1}},
				Options: options.Index().SetName("userId_unique").SetUnique(true),
			}},
		},
	}
}

// EnsureIndexes creates every storefront index, continuing past failures and
// returning the first error seen.
func EnsureIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var firstErr error
	for _, ci := range storefrontIndexes() {
		log.Printf("EnsureIndexes: creating %d index(es) on %s", len(ci.models), ci.collection)
		if _, err := db.Collection(ci.collection).Indexes().CreateMany(ctx, ci.models); err != nil {
			log.Printf("EnsureIndexes: %s index error: %v", ci.collection, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Printf("EnsureIndexes: %s indexes ready", ci.collection)
	}
	return firstErr
}
