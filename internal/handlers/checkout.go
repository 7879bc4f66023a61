package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/storage"
)

const receiptImageField = "receiptImage"

type OrderPlacer interface {
	Place(ctx context.Context, req checkout.Request) (checkout.Result, error)
	SubmitReceipt(ctx context.Context, userID, orderID primitive.ObjectID, details checkout.ReceiptDetails, image *checkout.Image) (checkout.ReceiptResult, error)
}

type OrderLister interface {
	ListOrdersByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
}

// checkoutForm is the flat multipart form the checkout page posts.
type checkoutForm struct {
	checkout.Shipping
	checkout.ReceiptDetails
	PaymentMethodID string `json:"paymentMethodId" form:"paymentMethodId"`
	Notes           string `json:"notes" form:"notes"`
}

/*
POST /checkout
- multipart/form-data with the shipping, payment and receipt fields
- optional receiptImage file
*/
func Checkout(placer OrderPlacer, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout"
		defer handlePanic(c, route)

		userID, _ := userIDFromContext(c)

		var form checkoutForm
		if err := c.ShouldBind(&form); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid body")
			return
		}

		image, closeImage, err := receiptImageFromForm(c)
		if err != nil {
			respondCheckoutError(c, route, err)
			return
		}
		defer closeImage()

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		result, err := placer.Place(ctx, checkout.Request{
			UserID:          userID,
			Shipping:        form.Shipping,
			PaymentMethodID: form.PaymentMethodID,
			Notes:           form.Notes,
			Receipt:         form.ReceiptDetails,
			Image:           image,
		})
		if err != nil {
			respondCheckoutError(c, route, err)
			return
		}

		c.JSON(http.StatusCreated, result)
	}
}

/*
POST /orders/:id/receipt
- Sends the payment receipt for an order that has none yet
*/
func SubmitOrderReceipt(placer OrderPlacer, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders/:id/receipt"
		defer handlePanic(c, route)

		userID, _ := userIDFromContext(c)
		orderID, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		var details checkout.ReceiptDetails
		if err := c.ShouldBind(&details); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid body")
			return
		}

		image, closeImage, err := receiptImageFromForm(c)
		if err != nil {
			respondCheckoutError(c, route, err)
			return
		}
		defer closeImage()

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		result, err := placer.SubmitReceipt(ctx, userID, orderID, details, image)
		if err != nil {
			respondCheckoutError(c, route, err)
			return
		}

		c.JSON(http.StatusCreated, result)
	}
}

// GetMyOrders lists the caller's orders, newest first.
func GetMyOrders(orders OrderLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders"
		defer handlePanic(c, route)

		userID, ok := userIDFromContext(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		list, err := orders.ListOrdersByUser(ctx, userID)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if list == nil {
			list = []models.Order{}
		}
		c.JSON(http.StatusOK, list)
	}
}

// receiptImageFromForm opens the optional receipt file and sniffs its type.
// The returned close func is always safe to call.
func receiptImageFromForm(c *gin.Context) (*checkout.Image, func(), error) {
	noop := func() {}
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, noop, nil
	}

	header, err := c.FormFile(receiptImageField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}

	file, err := header.Open()
	if err != nil {
		return nil, noop, err
	}
	contentType, err := sniffUpload(file)
	if err != nil {
		_ = file.Close()
		return nil, noop, err
	}

	image := &checkout.Image{
		Filename:    header.Filename,
		Size:        header.Size,
		ContentType: contentType,
		Body:        file,
	}
	return image, func() { _ = file.Close() }, nil
}

func sniffUpload(file multipart.File) (string, error) {
	contentType, err := storage.Sniff(file)
	if errors.Is(err, io.EOF) {
		return "application/octet-stream", nil
	}
	return contentType, err
}

func respondCheckoutError(c *gin.Context, route string, err error) {
	message := checkout.UserMessage(err)

	var vErr *checkout.ValidationError
	if errors.As(err, &vErr) {
		log.Printf("[%s] validation failed on %s", route, vErr.Field)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message, "field": vErr.Field})
		return
	}

	var stepErr *checkout.StepError
	if errors.As(err, &stepErr) {
		body := gin.H{"error": message, "step": stepErr.Step, "compensated": stepErr.Compensated}
		if !stepErr.OrderID.IsZero() {
			body["orderId"] = stepErr.OrderID.Hex()
		}
		log.Printf("[%s] returning error %d: %v", route, http.StatusBadGateway, err)
		c.AbortWithStatusJSON(http.StatusBadGateway, body)
		return
	}

	switch {
	case errors.Is(err, checkout.ErrUnauthenticated):
		respondWithError(c, http.StatusUnauthorized, route, message)
	case errors.Is(err, checkout.ErrEmptyCart):
		respondWithError(c, http.StatusBadRequest, route, message)
	case errors.Is(err, checkout.ErrOrderNotFound):
		respondWithError(c, http.StatusNotFound, route, message)
	case errors.Is(err, checkout.ErrReceiptExists):
		respondWithError(c, http.StatusConflict, route, message)
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(c, http.StatusGatewayTimeout, route, "request timed out")
	default:
		log.Printf("[%s] unexpected error: %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, message)
	}
}
