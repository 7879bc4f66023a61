package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Profile is the shopper or admin account.
type Profile struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	FirstName    *string            `bson:"firstName" json:"firstName"`
	LastName     *string            `bson:"lastName" json:"lastName"`
	Phone        *string            `bson:"phone" json:"phone"`
	Cedula       *string            `bson:"cedula" json:"cedula"`
	IsAdmin      bool               `bson:"isAdmin" json:"isAdmin"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (p Profile) Role() string {
	if p.IsAdmin {
		return "admin"
	}
	return "customer"
}
