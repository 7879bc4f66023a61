package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
	"storefront/internal/sanitize"
)

const defaultPaymentMethodName = "Método sin nombre"

type PaymentMethodRequest struct {
	Name          string `json:"name"`
	Type          string `json:"type" binding:"required,oneof=bank_transfer mobile_payment zelle binance paypal crypto"`
	AccountHolder string `json:"accountHolder"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Cedula        string `json:"cedula"`
	IsActive      *bool  `json:"isActive"`
}

// paymentMethodShowsField reports whether the admin form collects field for
// the given method type. Hidden fields are stored as absent.
func paymentMethodShowsField(methodType, field string) bool {
	if methodType == models.PaymentTypeMobilePayment {
		switch field {
		case "accountHolder", "bankName", "cedula", "phone":
			return true
		}
		return false
	}
	switch field {
	case "accountNumber":
		return true
	case "bankName":
		return methodType == models.PaymentTypeBankTransfer
	case "phone":
		return methodType == models.PaymentTypeBinance
	case "email":
		return methodType == models.PaymentTypeZelle || methodType == models.PaymentTypePayPal || methodType == models.PaymentTypeCrypto
	case "cedula":
		return false
	}
	return true
}

func buildPaymentMethod(req PaymentMethodRequest) models.PaymentMethod {
	shown := func(field, value string) *string {
		if !paymentMethodShowsField(req.Type, field) {
			return nil
		}
		return sanitize.NullableString(value)
	}

	method := models.PaymentMethod{
		Name:          sanitize.TrimmedOr(req.Name, defaultPaymentMethodName),
		Type:          req.Type,
		AccountHolder: shown("accountHolder", req.AccountHolder),
		AccountNumber: shown("accountNumber", req.AccountNumber),
		BankName:      shown("bankName", req.BankName),
		Phone:         shown("phone", req.Phone),
		Email:         shown("email", req.Email),
		IsActive:      true,
	}
	if cedula := shown("cedula", req.Cedula); cedula != nil {
		method.AdditionalData = map[string]string{"cedula": *cedula}
	}
	if req.IsActive != nil {
		method.IsActive = *req.IsActive
	}
	return method
}

func listPaymentMethods(c *gin.Context, db *mongo.Database, route string, filter bson.M) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	cursor, err := db.Collection("payment_methods").Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, route, "db error")
		return
	}
	defer cursor.Close(ctx)

	methods := make([]models.PaymentMethod, 0)
	if err := cursor.All(ctx, &methods); err != nil {
		respondWithError(c, http.StatusInternalServerError, route, "decode error")
		return
	}

	log.Printf("[%s] returning %d payment methods", route, len(methods))
	c.JSON(http.StatusOK, methods)
}

// GetPaymentMethods lists the methods a shopper can choose at checkout.
func GetPaymentMethods(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /payment-methods"
		defer handlePanic(c, route)
		listPaymentMethods(c, db, route, bson.M{"isActive": true})
	}
}

func GetAllPaymentMethods(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/payment-methods"
		defer handlePanic(c, route)
		listPaymentMethods(c, db, route, bson.M{})
	}
}

func CreatePaymentMethod(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/payment-methods"
		defer handlePanic(c, route)

		var req PaymentMethodRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		method := buildPaymentMethod(req)
		method.CreatedAt = time.Now()

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		res, err := db.Collection("payment_methods").InsertOne(ctx, method)
		if err != nil {
			log.Printf("[%s] insert failed payload=%+v: %v", route, method, err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		method.ID = res.InsertedID.(primitive.ObjectID)

		c.JSON(http.StatusCreated, method)
	}
}

// UpdatePaymentMethod replaces the editable fields; fields hidden for the new
// type are cleared.
func UpdatePaymentMethod(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/payment-methods/:id"
		defer handlePanic(c, route)

		id, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		var req PaymentMethodRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		method := buildPaymentMethod(req)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var updated models.PaymentMethod
		err := db.Collection("payment_methods").FindOneAndUpdate(ctx,
			bson.M{"_id": id},
			bson.M{"$set": bson.M{
				"name":           method.Name,
				"type":           method.Type,
				"accountHolder":  method.AccountHolder,
				"accountNumber":  method.AccountNumber,
				"bankName":       method.BankName,
				"phone":          method.Phone,
				"email":          method.Email,
				"additionalData": method.AdditionalData,
				"isActive":       method.IsActive,
			}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "payment method not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

func DeletePaymentMethod(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/api/payment-methods/:id"
		defer handlePanic(c, route)

		id, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		result, err := db.Collection("payment_methods").DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if result.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "payment method not found")
			return
		}

		c.Status(http.StatusNoContent)
	}
}
