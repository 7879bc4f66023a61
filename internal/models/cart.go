package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrLineNotFound    = errors.New("product is not in the cart")
)

// ProductSnapshot is what the cart remembers about a product when it was added.
type ProductSnapshot struct {
	Name          string   `bson:"name" json:"name"`
	ImageURL      *string  `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	IsOnSale      bool     `bson:"isOnSale" json:"isOnSale"`
	OriginalPrice *float64 `bson:"originalPrice,omitempty" json:"originalPrice,omitempty"`
}

type CartLine struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	UnitPrice float64            `bson:"unitPrice" json:"unitPrice"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Product   ProductSnapshot    `bson:"product" json:"product"`
}

// Cart holds at most one line per product and never a line with quantity < 1.
type Cart struct {
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Lines     []CartLine         `bson:"lines" json:"lines"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Add merges quantity into an existing line or appends a new one.
func (c *Cart) Add(line CartLine) error {
	if line.Quantity < 1 {
		return ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID {
			c.Lines[i].Quantity += line.Quantity
			c.Lines[i].UnitPrice = line.UnitPrice
			c.Lines[i].Product = line.Product
			return nil
		}
	}
	c.Lines = append(c.Lines, line)
	return nil
}

// SetQuantity replaces a line's quantity; zero or less removes the line.
func (c *Cart) SetQuantity(productID primitive.ObjectID, quantity int) error {
	if quantity <= 0 {
		if !c.Remove(productID) {
			return ErrLineNotFound
		}
		return nil
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = quantity
			return nil
		}
	}
	return ErrLineNotFound
}

func (c *Cart) Remove(productID primitive.ObjectID) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) TotalItems() int {
	total := 0
	for _, line := range c.Lines {
		total += line.Quantity
	}
	return total
}

// TotalPrice is the sum of quantity x unit price, rounded to cents.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(decimal.NewFromFloat(line.UnitPrice).Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total.Round(2)
}
