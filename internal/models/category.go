package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Category struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description *string            `bson:"description,omitempty" json:"description,omitempty"`
	Icon        *string            `bson:"icon,omitempty" json:"icon,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}
