// Package checkout turns a shopper's cart into an order, its items and a
// payment receipt. The writes run in sequence against a store with no
// multi-document transaction; a failed step leaves earlier writes in place
// unless compensation is enabled.
package checkout

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/sanitize"
	"storefront/internal/storage"
	"storefront/internal/store"
)

const (
	receiptBucket = "receipts"
	receiptFolder = "payment-receipts"
)

type OrderStore interface {
	InsertOrder(ctx context.Context, order models.Order) (primitive.ObjectID, error)
	InsertOrderItems(ctx context.Context, items []models.OrderItem) error
	InsertReceipt(ctx context.Context, receipt models.PaymentReceipt) (primitive.ObjectID, error)
	DeleteOrder(ctx context.Context, id primitive.ObjectID) error
	FindOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	CountReceipts(ctx context.Context, orderID primitive.ObjectID) (int64, error)
	FindPaymentMethod(ctx context.Context, id primitive.ObjectID) (models.PaymentMethod, error)
}

type Uploader interface {
	Upload(ctx context.Context, bucket, objectPath string, body io.Reader) (string, error)
	Delete(ctx context.Context, bucket, objectPath string) error
}

type RateSource interface {
	EffectiveRate() float64
}

type CartStore interface {
	Get(ctx context.Context, userID primitive.ObjectID) (models.Cart, error)
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

type Options struct {
	// Compensate deletes the order and its items when a later step fails.
	Compensate bool
}

type Workflow struct {
	orders     OrderStore
	uploader   Uploader
	rates      RateSource
	carts      CartStore
	publisher  Publisher
	compensate bool
	now        func() time.Time
}

func NewWorkflow(orders OrderStore, uploader Uploader, rates RateSource, carts CartStore, publisher Publisher, opts Options) *Workflow {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Workflow{
		orders:     orders,
		uploader:   uploader,
		rates:      rates,
		carts:      carts,
		publisher:  publisher,
		compensate: opts.Compensate,
		now:        time.Now,
	}
}

type Result struct {
	OrderID         primitive.ObjectID `json:"orderId"`
	ReceiptID       primitive.ObjectID `json:"receiptId"`
	TotalUSD        float64            `json:"totalUsd"`
	TotalLocal      float64            `json:"totalLocal"`
	ExchangeRate    float64            `json:"exchangeRate"`
	ItemCount       int                `json:"itemCount"`
	ReceiptImageURL *string            `json:"receiptImageUrl,omitempty"`
}

type ReceiptResult struct {
	OrderID         primitive.ObjectID `json:"orderId"`
	ReceiptID       primitive.ObjectID `json:"receiptId"`
	ReceiptImageURL *string            `json:"receiptImageUrl,omitempty"`
}

type orderCreatedEvent struct {
	OrderID    string  `json:"orderId"`
	UserID     string  `json:"userId"`
	TotalUSD   float64 `json:"totalUsd"`
	TotalLocal float64 `json:"totalLocal"`
	Rate       float64 `json:"exchangeRate"`
	Items      int     `json:"items"`
}

type receiptSubmittedEvent struct {
	OrderID   string `json:"orderId"`
	ReceiptID string `json:"receiptId"`
	UserID    string `json:"userId"`
}

// Place runs the whole checkout. Every precondition is checked before the
// first write.
func (w *Workflow) Place(ctx context.Context, req Request) (Result, error) {
	if req.UserID.IsZero() {
		return Result{}, ErrUnauthenticated
	}

	// Form checks need no I/O and run before the cart is read.
	paymentMethodID, err := validateShipping(req.Shipping, req.PaymentMethodID)
	if err != nil {
		return Result{}, err
	}
	if err := validateReceipt(req.Receipt); err != nil {
		return Result{}, err
	}
	if err := validateImage(req.Image); err != nil {
		return Result{}, err
	}

	cart, err := w.carts.Get(ctx, req.UserID)
	if err != nil {
		log.Printf("[CHECKOUT] [ERROR] loading cart user=%s: %v", req.UserID.Hex(), err)
		return Result{}, err
	}
	if cart.Empty() {
		return Result{}, ErrEmptyCart
	}
	if err := w.checkPaymentMethod(ctx, paymentMethodID); err != nil {
		return Result{}, err
	}

	now := w.now()
	rate := decimal.NewFromFloat(sanitize.NumericOrZero(w.rates.EffectiveRate()))
	items, totalUSD := buildItems(cart)
	totalLocal := totalUSD.Mul(rate).Round(2)

	order := models.Order{
		UserID:          req.UserID,
		TotalUSD:        totalUSD.InexactFloat64(),
		TotalLocal:      totalLocal.InexactFloat64(),
		ExchangeRate:    rate.InexactFloat64(),
		PaymentMethodID: paymentMethodID,
		ShippingAddress: normalizeShipping(req.Shipping),
		Notes:           sanitize.NullableString(req.Notes),
		Status:          models.OrderPendingVerification,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	orderID, err := w.orders.InsertOrder(ctx, order)
	if err != nil {
		return Result{}, w.fail(ctx, StepOrder, primitive.NilObjectID, "", order, err)
	}
	order.ID = orderID
	metrics.RecordCheckoutStep(string(StepOrder), true)

	for i := range items {
		items[i].OrderID = orderID
		items[i].CreatedAt = now
	}
	if err := w.orders.InsertOrderItems(ctx, items); err != nil {
		return Result{}, w.fail(ctx, StepItems, orderID, "", items, err)
	}
	metrics.RecordCheckoutStep(string(StepItems), true)

	imageURL, objectPath, err := w.upload(ctx, orderID, req.Image)
	if err != nil {
		return Result{}, w.fail(ctx, StepUpload, orderID, "", req.Image.Filename, err)
	}

	receipt := newReceipt(orderID, req.UserID, paymentMethodID, req.Receipt, amountPaid(req.Receipt.AmountPaid, totalLocal), imageURL, now)
	receiptID, err := w.orders.InsertReceipt(ctx, receipt)
	if err != nil {
		return Result{}, w.fail(ctx, StepReceipt, orderID, objectPath, receipt, err)
	}
	metrics.RecordCheckoutStep(string(StepReceipt), true)

	log.Printf("[CHECKOUT] [INFO] order %s created for user %s: %d items, %.2f USD, %.2f local at %.4f",
		orderID.Hex(), req.UserID.Hex(), len(items), order.TotalUSD, order.TotalLocal, order.ExchangeRate)

	if err := w.publisher.Publish(ctx, events.OrderCreated, orderCreatedEvent{
		OrderID:    orderID.Hex(),
		UserID:     req.UserID.Hex(),
		TotalUSD:   order.TotalUSD,
		TotalLocal: order.TotalLocal,
		Rate:       order.ExchangeRate,
		Items:      len(items),
	}); err != nil {
		log.Printf("[CHECKOUT] [WARN] order.created not published for %s: %v", orderID.Hex(), err)
	}

	if err := w.carts.Clear(ctx, req.UserID); err != nil {
		log.Printf("[CHECKOUT] [WARN] cart not cleared after order %s: %v", orderID.Hex(), err)
	}

	return Result{
		OrderID:         orderID,
		ReceiptID:       receiptID,
		TotalUSD:        order.TotalUSD,
		TotalLocal:      order.TotalLocal,
		ExchangeRate:    order.ExchangeRate,
		ItemCount:       len(items),
		ReceiptImageURL: imageURL,
	}, nil
}

// SubmitReceipt attaches a receipt to an existing order that has none yet.
func (w *Workflow) SubmitReceipt(ctx context.Context, userID, orderID primitive.ObjectID, details ReceiptDetails, image *Image) (ReceiptResult, error) {
	if userID.IsZero() {
		return ReceiptResult{}, ErrUnauthenticated
	}
	if err := validateReceipt(details); err != nil {
		return ReceiptResult{}, err
	}
	if err := validateImage(image); err != nil {
		return ReceiptResult{}, err
	}

	order, err := w.orders.FindOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && order.UserID != userID) {
		return ReceiptResult{}, ErrOrderNotFound
	}
	if err != nil {
		return ReceiptResult{}, err
	}

	count, err := w.orders.CountReceipts(ctx, orderID)
	if err != nil {
		return ReceiptResult{}, err
	}
	if count > 0 {
		return ReceiptResult{}, ErrReceiptExists
	}

	imageURL, objectPath, err := w.upload(ctx, orderID, image)
	if err != nil {
		metrics.RecordCheckoutStep(string(StepUpload), false)
		log.Printf("[CHECKOUT] [ERROR] step=%s order=%s: %v", StepUpload, orderID.Hex(), err)
		return ReceiptResult{}, &StepError{Step: StepUpload, OrderID: orderID, Err: err}
	}

	paid := amountPaid(details.AmountPaid, decimal.NewFromFloat(order.TotalLocal))
	receipt := newReceipt(orderID, userID, order.PaymentMethodID, details, paid, imageURL, w.now())
	receiptID, err := w.orders.InsertReceipt(ctx, receipt)
	if errors.Is(err, store.ErrDuplicate) {
		w.discardUpload(objectPath)
		return ReceiptResult{}, ErrReceiptExists
	}
	if err != nil {
		metrics.RecordCheckoutStep(string(StepReceipt), false)
		log.Printf("[CHECKOUT] [ERROR] step=%s order=%s payload=%+v: %v", StepReceipt, orderID.Hex(), receipt, err)
		w.discardUpload(objectPath)
		return ReceiptResult{}, &StepError{Step: StepReceipt, OrderID: orderID, Err: err}
	}
	metrics.RecordCheckoutStep(string(StepReceipt), true)

	if err := w.publisher.Publish(ctx, events.ReceiptSubmitted, receiptSubmittedEvent{
		OrderID:   orderID.Hex(),
		ReceiptID: receiptID.Hex(),
		UserID:    userID.Hex(),
	}); err != nil {
		log.Printf("[CHECKOUT] [WARN] receipt.submitted not published for %s: %v", orderID.Hex(), err)
	}

	log.Printf("[CHECKOUT] [INFO] receipt %s submitted for order %s", receiptID.Hex(), orderID.Hex())
	return ReceiptResult{OrderID: orderID, ReceiptID: receiptID, ReceiptImageURL: imageURL}, nil
}

func (w *Workflow) checkPaymentMethod(ctx context.Context, id primitive.ObjectID) error {
	if _, err := w.orders.FindPaymentMethod(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &ValidationError{Field: "paymentMethodId", Message: "El método de pago seleccionado no está disponible"}
		}
		log.Printf("[CHECKOUT] [ERROR] payment method lookup %s: %v", id.Hex(), err)
		return err
	}
	return nil
}

func (w *Workflow) upload(ctx context.Context, orderID primitive.ObjectID, img *Image) (*string, string, error) {
	if img == nil {
		return nil, "", nil
	}
	objectPath := storage.ObjectPath(receiptFolder, orderID.Hex(), storage.Extension(img.Filename, img.ContentType), w.now())
	url, err := w.uploader.Upload(ctx, receiptBucket, objectPath, img.Body)
	if err != nil {
		return nil, "", err
	}
	metrics.RecordCheckoutStep(string(StepUpload), true)
	return &url, objectPath, nil
}

// fail logs the attempted payload, records the failed step and, when enabled,
// rolls back what was written for orderID.
func (w *Workflow) fail(ctx context.Context, step Step, orderID primitive.ObjectID, objectPath string, payload interface{}, cause error) error {
	metrics.RecordCheckoutStep(string(step), false)
	log.Printf("[CHECKOUT] [ERROR] step=%s order=%s payload=%+v: %v", step, orderID.Hex(), payload, cause)

	stepErr := &StepError{Step: step, OrderID: orderID, Err: cause}
	if !w.compensate || orderID.IsZero() {
		if !orderID.IsZero() {
			log.Printf("[CHECKOUT] [WARN] order %s left in %s without receipt", orderID.Hex(), models.OrderPendingVerification)
		}
		return stepErr
	}

	w.discardUpload(objectPath)
	// The request context may already be done; compensation gets its own.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.orders.DeleteOrder(cctx, orderID); err != nil {
		log.Printf("[CHECKOUT] [ERROR] compensation for order %s failed: %v", orderID.Hex(), err)
		return stepErr
	}
	stepErr.Compensated = true
	log.Printf("[CHECKOUT] [INFO] order %s rolled back after %s failure", orderID.Hex(), step)
	return stepErr
}

func (w *Workflow) discardUpload(objectPath string) {
	if objectPath == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.uploader.Delete(ctx, receiptBucket, objectPath); err != nil {
		log.Printf("[CHECKOUT] [WARN] could not remove uploaded receipt %s: %v", objectPath, err)
	}
}

// buildItems prices each cart line. Line totals are rounded to cents and the
// order total is their sum.
func buildItems(cart models.Cart) ([]models.OrderItem, decimal.Decimal) {
	items := make([]models.OrderItem, 0, len(cart.Lines))
	total := decimal.Zero
	for _, line := range cart.Lines {
		unit := decimal.NewFromFloat(sanitize.NumericOrZero(line.UnitPrice))
		qty := int(sanitize.NumericOrZero(line.Quantity))
		lineTotal := unit.Mul(decimal.NewFromInt(int64(qty))).Round(2)
		total = total.Add(lineTotal)
		items = append(items, models.OrderItem{
			ID:         primitive.NewObjectID(),
			ProductID:  line.ProductID,
			Quantity:   qty,
			UnitPrice:  unit.InexactFloat64(),
			TotalPrice: lineTotal.InexactFloat64(),
		})
	}
	return items, total
}

func newReceipt(orderID, userID, paymentMethodID primitive.ObjectID, r ReceiptDetails, paid float64, imageURL *string, now time.Time) models.PaymentReceipt {
	pm := paymentMethodID
	return models.PaymentReceipt{
		ID:              primitive.NewObjectID(),
		OrderID:         orderID,
		UserID:          userID,
		PaymentMethodID: &pm,
		HolderName:      sanitize.TrimmedOr(r.HolderName, ""),
		HolderPhone:     sanitize.TrimmedOr(r.HolderPhone, ""),
		HolderCedula:    sanitize.TrimmedOr(r.HolderCedula, ""),
		BankUsed:        sanitize.TrimmedOr(r.BankUsed, ""),
		AmountPaid:      paid,
		ReferenceNumber: sanitize.TrimmedOr(r.ReferenceNumber, ""),
		ReceiptImageURL: imageURL,
		Status:          models.ReceiptPending,
		CreatedAt:       now,
	}
}
