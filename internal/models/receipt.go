package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "pending"
	ReceiptApproved ReceiptStatus = "approved"
	ReceiptRejected ReceiptStatus = "rejected"
)

// PaymentReceipt is the shopper's proof of payment awaiting admin review.
type PaymentReceipt struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	OrderID         primitive.ObjectID  `bson:"orderId" json:"orderId"`
	UserID          primitive.ObjectID  `bson:"userId" json:"userId"`
	PaymentMethodID *primitive.ObjectID `bson:"paymentMethodId,omitempty" json:"paymentMethodId,omitempty"`
	HolderName      string              `bson:"holderName" json:"holderName"`
	HolderPhone     string              `bson:"holderPhone" json:"holderPhone"`
	HolderCedula    string              `bson:"holderCedula" json:"holderCedula"`
	BankUsed        string              `bson:"bankUsed" json:"bankUsed"`
	AmountPaid      float64             `bson:"amountPaid" json:"amountPaid"`
	ReferenceNumber string              `bson:"referenceNumber" json:"referenceNumber"`
	ReceiptImageURL *string             `bson:"receiptImageUrl" json:"receiptImageUrl"`
	Status          ReceiptStatus       `bson:"status" json:"status"`
	AdminNotes      *string             `bson:"adminNotes,omitempty" json:"adminNotes,omitempty"`
	ReviewedBy      *primitive.ObjectID `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time          `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
}
