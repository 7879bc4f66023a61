package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is the fulfilment state an admin moves an order through.
type OrderStatus string

const (
	OrderPendingVerification OrderStatus = "pending_verification"
	OrderApproved            OrderStatus = "approved"
	OrderDispatched          OrderStatus = "dispatched"
	OrderDelivered           OrderStatus = "delivered"
	OrderRejected            OrderStatus = "rejected"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPendingVerification, OrderApproved, OrderDispatched, OrderDelivered, OrderRejected:
		return true
	}
	return false
}

// ShippingAddress keeps absent fields as nil so readers can tell "absent" from "empty".
type ShippingAddress struct {
	FirstName *string `bson:"firstName" json:"firstName"`
	LastName  *string `bson:"lastName" json:"lastName"`
	Phone     *string `bson:"phone" json:"phone"`
	Address   *string `bson:"address" json:"address"`
	City      *string `bson:"city" json:"city"`
	State     *string `bson:"state" json:"state"`
	ZipCode   *string `bson:"zipCode" json:"zipCode"`
}

// Order is the header row. Totals and ExchangeRate are frozen at creation.
type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          primitive.ObjectID `bson:"userId" json:"userId"`
	TotalUSD        float64            `bson:"totalUsd" json:"totalUsd"`
	TotalLocal      float64            `bson:"totalLocal" json:"totalLocal"`
	ExchangeRate    float64            `bson:"exchangeRate" json:"exchangeRate"`
	PaymentMethodID primitive.ObjectID `bson:"paymentMethodId" json:"paymentMethodId"`
	ShippingAddress ShippingAddress    `bson:"shippingAddress" json:"shippingAddress"`
	Notes           *string            `bson:"notes" json:"notes"`
	Status          OrderStatus        `bson:"status" json:"status"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// OrderItem is one line of an order. TotalPrice = Quantity * UnitPrice.
type OrderItem struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID    primitive.ObjectID `bson:"orderId" json:"orderId"`
	ProductID  primitive.ObjectID `bson:"productId" json:"productId"`
	Quantity   int                `bson:"quantity" json:"quantity"`
	UnitPrice  float64            `bson:"unitPrice" json:"unitPrice"`
	TotalPrice float64            `bson:"totalPrice" json:"totalPrice"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}
