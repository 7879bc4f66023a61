package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/sanitize"
)

type ReceiptReviewRequest struct {
	Status     string `json:"status" binding:"required,oneof=approved rejected"`
	AdminNotes string `json:"adminNotes"`
}

type receiptReviewedEvent struct {
	ReceiptID  string `json:"receiptId"`
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
	ReviewedBy string `json:"reviewedBy"`
}

// reviewableOrderStatuses are the order states a receipt verdict may move.
var reviewableOrderStatuses = []models.OrderStatus{models.OrderPendingVerification}

func orderStatusForVerdict(verdict models.ReceiptStatus) models.OrderStatus {
	if verdict == models.ReceiptRejected {
		return models.OrderRejected
	}
	return models.OrderApproved
}

/*
PUT /admin/api/receipts/:id/review
- Records the verdict on the receipt
- Moves an order still pending verification to approved or rejected
*/
func ReviewReceipt(db *mongo.Database, publisher EventPublisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/receipts/:id/review"
		defer handlePanic(c, route)

		id, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		var req ReceiptReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		reviewer, ok := userIDFromContext(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		status := models.ReceiptStatus(strings.TrimSpace(req.Status))
		now := time.Now()
		set := bson.M{
			"status":     status,
			"reviewedBy": reviewer,
			"reviewedAt": now,
		}
		update := bson.M{"$set": set}
		if notes := sanitize.NullableString(req.AdminNotes); notes != nil {
			set["adminNotes"] = *notes
		} else {
			update["$unset"] = bson.M{"adminNotes": ""}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var receipt models.PaymentReceipt
		err := db.Collection("payment_receipts").FindOneAndUpdate(ctx,
			bson.M{"_id": id},
			update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&receipt)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "receipt not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		orderStatus := orderStatusForVerdict(status)
		previous, err := setOrderStatus(ctx, db, receipt.OrderID, orderStatus, reviewableOrderStatuses)
		switch {
		case err == nil:
			publishStatusChange(ctx, publisher, previous, orderStatus)
		case errors.Is(err, mongo.ErrNoDocuments):
			log.Printf("[%s] order %s not pending, status left as is", route, receipt.OrderID.Hex())
		default:
			log.Printf("[%s] [WARN] order %s status not updated: %v", route, receipt.OrderID.Hex(), err)
		}

		if err := publisher.Publish(ctx, events.ReceiptReviewed, receiptReviewedEvent{
			ReceiptID:  receipt.ID.Hex(),
			OrderID:    receipt.OrderID.Hex(),
			Status:     string(receipt.Status),
			ReviewedBy: reviewer.Hex(),
		}); err != nil {
			log.Printf("[%s] [WARN] %s not published: %v", route, events.ReceiptReviewed, err)
		}

		c.JSON(http.StatusOK, receipt)
	}
}
