package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Product struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name          string              `bson:"name" json:"name"`
	Description   *string             `bson:"description,omitempty" json:"description,omitempty"`
	Price         float64             `bson:"price" json:"price"`
	OriginalPrice *float64            `bson:"originalPrice,omitempty" json:"originalPrice,omitempty"`
	IsOnSale      bool                `bson:"isOnSale" json:"isOnSale"`
	CategoryID    *primitive.ObjectID `bson:"categoryId,omitempty" json:"categoryId,omitempty"`
	ImageURL      *string             `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	Stock         int                 `bson:"stock" json:"stock"`
	InStock       bool                `bson:"-" json:"inStock"`
	Rating        float64             `bson:"rating" json:"rating"`
	ReviewsCount  int                 `bson:"reviewsCount" json:"reviewsCount"`
	IsActive      bool                `bson:"isActive" json:"isActive"`
	CreatedAt     time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time           `bson:"updatedAt" json:"updatedAt"`
}
