package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment method types accepted by the admin form.
const (
	PaymentTypeBankTransfer  = "bank_transfer"
	PaymentTypeMobilePayment = "mobile_payment"
	PaymentTypeZelle         = "zelle"
	PaymentTypeBinance       = "binance"
	PaymentTypePayPal        = "paypal"
	PaymentTypeCrypto        = "crypto"
)

// PaymentMethod is an account shoppers transfer money to before uploading a receipt.
type PaymentMethod struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Type           string             `bson:"type" json:"type"`
	AccountHolder  *string            `bson:"accountHolder,omitempty" json:"accountHolder,omitempty"`
	AccountNumber  *string            `bson:"accountNumber,omitempty" json:"accountNumber,omitempty"`
	BankName       *string            `bson:"bankName,omitempty" json:"bankName,omitempty"`
	Phone          *string            `bson:"phone,omitempty" json:"phone,omitempty"`
	Email          *string            `bson:"email,omitempty" json:"email,omitempty"`
	AdditionalData map[string]string  `bson:"additionalData,omitempty" json:"additionalData,omitempty"`
	IsActive       bool               `bson:"isActive" json:"isActive"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
}
