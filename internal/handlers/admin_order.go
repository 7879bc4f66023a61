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
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/store"
)

// OrderLedger reads an order with its children and deletes it in cascade.
type OrderLedger interface {
	FindOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	ListOrderItems(ctx context.Context, orderID primitive.ObjectID) ([]models.OrderItem, error)
	ListReceipts(ctx context.Context, orderID primitive.ObjectID) ([]models.PaymentReceipt, error)
	DeleteOrder(ctx context.Context, id primitive.ObjectID) error
}

// EventPublisher is the subset of events.Publisher handlers need.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

type OrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type adminOrderRow struct {
	models.Order `bson:",inline"`
	ReceiptCount int `bson:"receiptCount" json:"receiptCount"`
}

type orderStatusChangedEvent struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

/*
GET /admin/api/orders
- ?status= one of the order statuses
- ?orphaned=true keeps only orders without a payment receipt
*/
func ListOrders(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		match := bson.M{}
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			if !models.OrderStatus(status).Valid() {
				respondWithError(c, http.StatusBadRequest, route, "invalid status")
				return
			}
			match["status"] = status
		}

		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: match}},
			{{Key: "$lookup", Value: bson.M{
				"from":         "payment_receipts",
				"localField":   "_id",
				"foreignField": "orderId",
				"as":           "receipts",
			}}},
			{{Key: "$addFields", Value: bson.M{"receiptCount": bson.M{"$size": "$receipts"}}}},
			{{Key: "$project", Value: bson.M{"receipts": 0}}},
		}
		if strings.EqualFold(c.Query("orphaned"), "true") {
			pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"receiptCount": 0}}})
		}
		pipeline = append(pipeline,
			bson.D{{Key: "$sort", Value: bson.M{"createdAt": -1}}},
			bson.D{{Key: "$facet", Value: bson.M{
				"data":  bson.A{bson.M{"$skip": (page - 1) * limit}, bson.M{"$limit": limit}},
				"total": bson.A{bson.M{"$count": "count"}},
			}}},
		)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cursor, err := db.Collection("orders").Aggregate(ctx, pipeline)
		if err != nil {
			log.Printf("[%s] aggregate failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		var facets []struct {
			Data  []adminOrderRow `bson:"data"`
			Total []struct {
				Count int64 `bson:"count"`
			} `bson:"total"`
		}
		if err := cursor.All(ctx, &facets); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		rows := make([]adminOrderRow, 0)
		total := int64(0)
		if len(facets) > 0 {
			if facets[0].Data != nil {
				rows = facets[0].Data
			}
			if len(facets[0].Total) > 0 {
				total = facets[0].Total[0].Count
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"data":       rows,
			"pagination": paginationMeta(page, limit, total),
		})
	}
}

func GetOrderDetail(ledger OrderLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders/:id"
		defer handlePanic(c, route)

		id, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		order, err := ledger.FindOrder(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(c, http.StatusNotFound, route, "order not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		items, err := ledger.ListOrderItems(ctx, id)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		receipts, err := ledger.ListReceipts(ctx, id)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"order":    order,
			"items":    items,
			"receipts": receipts,
		})
	}
}

func UpdateOrderStatus(db *mongo.Database, publisher EventPublisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /admin/api/orders/:id/status"
		defer handlePanic(c, route)

		id, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		var req OrderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		status := models.OrderStatus(strings.TrimSpace(req.Status))
		if !status.Valid() {
			respondWithError(c, http.StatusBadRequest, route, "invalid status")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		previous, err := setOrderStatus(ctx, db, id, status, nil)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "order not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		publishStatusChange(ctx, publisher, previous, status)
		previous.Status = status
		c.JSON(http.StatusOK, previous)
	}
}

// setOrderStatus moves an order to status and returns the row as it was.
// When only is non-empty the update applies only to orders in one of those
// statuses.
func setOrderStatus(ctx context.Context, db *mongo.Database, id primitive.ObjectID, status models.OrderStatus, only []models.OrderStatus) (models.Order, error) {
	filter := bson.M{"_id": id}
	if len(only) > 0 {
		filter["status"] = bson.M{"$in": only}
	}
	var previous models.Order
	err := db.Collection("orders").FindOneAndUpdate(ctx,
		filter,
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&previous)
	return previous, err
}

func publishStatusChange(ctx context.Context, publisher EventPublisher, previous models.Order, status models.OrderStatus) {
	if previous.Status == status {
		return
	}
	log.Printf("[ORDER] [INFO] order %s %s -> %s", previous.ID.Hex(), previous.Status, status)
	if err := publisher.Publish(ctx, events.OrderStatusChanged, orderStatusChangedEvent{
		OrderID: previous.ID.Hex(),
		UserID:  previous.UserID.Hex(),
		From:    string(previous.Status),
		To:      string(status),
	}); err != nil {
		log.Printf("[ORDER] [WARN] %s not published for %s: %v", events.OrderStatusChanged, previous.ID.Hex(), err)
	}
}

// DeleteOrder removes the order with its items, receipts and receipt images.
func DeleteOrder(ledger OrderLedger, images ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/api/orders/:id"
		defer handlePanic(c, route)

		orderID, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		receipts, err := ledger.ListReceipts(ctx, orderID)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		err = ledger.DeleteOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(c, http.StatusNotFound, route, "order not found")
			return
		}
		if err != nil {
			log.Printf("[%s] cascade delete of %s failed: %v", route, orderID.Hex(), err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		for _, receipt := range receipts {
			removeStoredImage(images, receipt.ReceiptImageURL)
		}

		c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
	}
}
