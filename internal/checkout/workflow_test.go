package checkout

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/store"
)

type fakeOrders struct {
	mu             sync.Mutex
	calls          int
	orders         map[primitive.ObjectID]models.Order
	items          []models.OrderItem
	receipts       []models.PaymentReceipt
	methods        map[primitive.ObjectID]models.PaymentMethod
	failOrder      error
	failItems      error
	failReceipt    error
	deleted        []primitive.ObjectID
	existingCounts map[primitive.ObjectID]int64
}

func newFakeOrders(methodID primitive.ObjectID) *fakeOrders {
	return &fakeOrders{
		orders:         map[primitive.ObjectID]models.Order{},
		methods:        map[primitive.ObjectID]models.PaymentMethod{methodID: {ID: methodID, Name: "Pago Móvil", Type: models.PaymentTypeMobilePayment, IsActive: true}},
		existingCounts: map[primitive.ObjectID]int64{},
	}
}

func (f *fakeOrders) InsertOrder(_ context.Context, order models.Order) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOrder != nil {
		return primitive.NilObjectID, f.failOrder
	}
	order.ID = primitive.NewObjectID()
	f.orders[order.ID] = order
	return order.ID, nil
}

func (f *fakeOrders) InsertOrderItems(_ context.Context, items []models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failItems != nil {
		return f.failItems
	}
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeOrders) InsertReceipt(_ context.Context, receipt models.PaymentReceipt) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failReceipt != nil {
		return primitive.NilObjectID, f.failReceipt
	}
	f.receipts = append(f.receipts, receipt)
	return receipt.ID, nil
}

func (f *fakeOrders) DeleteOrder(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.deleted = append(f.deleted, id)
	delete(f.orders, id)
	kept := f.items[:0]
	for _, item := range f.items {
		if item.OrderID != id {
			kept = append(kept, item)
		}
	}
	f.items = kept
	return nil
}

func (f *fakeOrders) FindOrder(_ context.Context, id primitive.ObjectID) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	order, ok := f.orders[id]
	if !ok {
		return models.Order{}, store.ErrNotFound
	}
	return order, nil
}

func (f *fakeOrders) CountReceipts(_ context.Context, orderID primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	n := f.existingCounts[orderID]
	for _, r := range f.receipts {
		if r.OrderID == orderID {
			n++
		}
	}
	return n, nil
}

func (f *fakeOrders) FindPaymentMethod(_ context.Context, id primitive.ObjectID) (models.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	m, ok := f.methods[id]
	if !ok {
		return models.PaymentMethod{}, store.ErrNotFound
	}
	return m, nil
}

type fakeUploader struct {
	uploads []string
	deletes []string
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, bucket, objectPath string, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	_, _ = io.Copy(io.Discard, body)
	f.uploads = append(f.uploads, bucket+"/"+objectPath)
	return "/public/" + bucket + "/" + objectPath, nil
}

func (f *fakeUploader) Delete(_ context.Context, bucket, objectPath string) error {
	f.deletes = append(f.deletes, bucket+"/"+objectPath)
	return nil
}

type fixedRate struct{ rate float64 }

func (r *fixedRate) EffectiveRate() float64 { return r.rate }

type fakeCarts struct {
	cart    models.Cart
	gets    int
	cleared int
}

func (f *fakeCarts) Get(context.Context, primitive.ObjectID) (models.Cart, error) {
	f.gets++
	return f.cart, nil
}

func (f *fakeCarts) Clear(context.Context, primitive.ObjectID) error {
	f.cleared++
	return nil
}

type fakePublisher struct {
	types []string
}

func (f *fakePublisher) Publish(_ context.Context, eventType string, _ interface{}) error {
	f.types = append(f.types, eventType)
	return nil
}

type harness struct {
	wf        *Workflow
	orders    *fakeOrders
	uploader  *fakeUploader
	rate      *fixedRate
	carts     *fakeCarts
	publisher *fakePublisher
	userID    primitive.ObjectID
	methodID  primitive.ObjectID
}

func newHarness(compensate bool, lines ...models.CartLine) *harness {
	h := &harness{
		userID:    primitive.NewObjectID(),
		methodID:  primitive.NewObjectID(),
		uploader:  &fakeUploader{},
		rate:      &fixedRate{rate: 50},
		publisher: &fakePublisher{},
	}
	h.orders = newFakeOrders(h.methodID)
	h.carts = &fakeCarts{cart: models.Cart{UserID: h.userID, Lines: lines}}
	h.wf = NewWorkflow(h.orders, h.uploader, h.rate, h.carts, h.publisher, Options{Compensate: compensate})
	h.wf.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return h
}

func (h *harness) request() Request {
	return Request{
		UserID: h.userID,
		Shipping: Shipping{
			FirstName: " María ",
			LastName:  "Pérez",
			Phone:     "04141234567",
			Address:   "Av. Bolívar",
			City:      "Valencia",
			State:     "Carabobo",
			ZipCode:   "  ",
		},
		PaymentMethodID: h.methodID.Hex(),
		Receipt: ReceiptDetails{
			HolderName:      "María Pérez",
			HolderPhone:     "04141234567",
			HolderCedula:    "V-12345678",
			BankUsed:        "Banesco",
			ReferenceNumber: "000123",
		},
	}
}

func gloves(qty int) models.CartLine {
	return models.CartLine{ProductID: primitive.NewObjectID(), UnitPrice: 45.99, Quantity: qty, Product: models.ProductSnapshot{Name: "Guantes"}}
}

func pngImage(size int64) *Image {
	return &Image{Filename: "comprobante.png", Size: size, ContentType: "image/png", Body: bytes.NewReader([]byte("png"))}
}

func TestPlace_SingleLineScenario(t *testing.T) {
	h := newHarness(false, gloves(2))

	res, err := h.wf.Place(context.Background(), h.request())
	require.NoError(t, err)

	assert.Equal(t, 91.98, res.TotalUSD)
	assert.Equal(t, 4599.00, res.TotalLocal)
	assert.Equal(t, 50.0, res.ExchangeRate)

	require.Len(t, h.orders.orders, 1)
	order := h.orders.orders[res.OrderID]
	assert.Equal(t, models.OrderPendingVerification, order.Status)
	assert.Equal(t, 91.98, order.TotalUSD)
	assert.Equal(t, 4599.00, order.TotalLocal)
	require.NotNil(t, order.ShippingAddress.FirstName)
	assert.Equal(t, "María", *order.ShippingAddress.FirstName)
	assert.Nil(t, order.ShippingAddress.ZipCode)
	assert.Nil(t, order.Notes)

	require.Len(t, h.orders.items, 1)
	assert.Equal(t, res.OrderID, h.orders.items[0].OrderID)
	assert.Equal(t, 91.98, h.orders.items[0].TotalPrice)

	require.Len(t, h.orders.receipts, 1)
	receipt := h.orders.receipts[0]
	assert.Equal(t, res.OrderID, receipt.OrderID)
	assert.Equal(t, models.ReceiptPending, receipt.Status)
	assert.Equal(t, 4599.00, receipt.AmountPaid)
	assert.Nil(t, receipt.ReceiptImageURL)

	assert.Equal(t, 1, h.carts.cleared)
	assert.Equal(t, []string{"order.created"}, h.publisher.types)
}

func TestPlace_TotalsMatchItemSums(t *testing.T) {
	lines := []models.CartLine{
		gloves(3),
		{ProductID: primitive.NewObjectID(), UnitPrice: 0.1, Quantity: 3},
		{ProductID: primitive.NewObjectID(), UnitPrice: 19.99, Quantity: 4},
	}
	h := newHarness(false, lines...)
	h.rate.rate = 36.58

	res, err := h.wf.Place(context.Background(), h.request())
	require.NoError(t, err)

	require.Len(t, h.orders.items, len(lines))
	sum := 0.0
	for i, item := range h.orders.items {
		assert.InDelta(t, float64(lines[i].Quantity)*lines[i].UnitPrice, item.TotalPrice, 1e-9)
		sum += item.TotalPrice
	}
	order := h.orders.orders[res.OrderID]
	assert.InDelta(t, sum, order.TotalUSD, 1e-9)
	assert.InDelta(t, order.TotalUSD*order.ExchangeRate, order.TotalLocal, 0.01)
}

func TestPlace_RateSnapshotIsFrozen(t *testing.T) {
	h := newHarness(false, gloves(1))

	res, err := h.wf.Place(context.Background(), h.request())
	require.NoError(t, err)
	h.rate.rate = 80

	order := h.orders.orders[res.OrderID]
	assert.Equal(t, 50.0, order.ExchangeRate)
	assert.Equal(t, 2299.5, order.TotalLocal)
}

func TestPlace_UploadsReceiptImageUnderOrderKey(t *testing.T) {
	h := newHarness(false, gloves(1))
	req := h.request()
	req.Image = pngImage(1024)

	res, err := h.wf.Place(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, h.uploader.uploads, 1)
	assert.Equal(t, "receipts/payment-receipts/"+res.OrderID.Hex()+"_1700000000000.png", h.uploader.uploads[0])
	require.NotNil(t, res.ReceiptImageURL)
	require.NotNil(t, h.orders.receipts[0].ReceiptImageURL)
	assert.Equal(t, *res.ReceiptImageURL, *h.orders.receipts[0].ReceiptImageURL)
}

func TestPlace_StoredExtensionFollowsContentType(t *testing.T) {
	h := newHarness(false, gloves(1))
	req := h.request()
	req.Image = pngImage(1024)
	req.Image.Filename = "comprobante.html"

	res, err := h.wf.Place(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, h.uploader.uploads, 1)
	assert.Equal(t, "receipts/payment-receipts/"+res.OrderID.Hex()+"_1700000000000.png", h.uploader.uploads[0])
}

func TestPlace_EmptyFirstNameRejectedBeforeAnyWrite(t *testing.T) {
	h := newHarness(false, gloves(2))
	req := h.request()
	req.Shipping.FirstName = "   "

	_, err := h.wf.Place(context.Background(), req)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "firstName", vErr.Field)
	assert.Equal(t, 0, h.carts.gets)
	assert.Equal(t, 0, h.orders.calls)
	assert.Empty(t, h.uploader.uploads)
	assert.Equal(t, 0, h.carts.cleared)
}

func TestPlace_ValidationNamesFirstMissingField(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Request)
		field string
	}{
		{"phone before state", func(r *Request) { r.Shipping.State = ""; r.Shipping.Phone = "" }, "phone"},
		{"payment method", func(r *Request) { r.PaymentMethodID = "" }, "paymentMethodId"},
		{"payment method malformed", func(r *Request) { r.PaymentMethodID = "pago-movil" }, "paymentMethodId"},
		{"cedula", func(r *Request) { r.Receipt.HolderCedula = "" }, "holderCedula"},
		{"amount", func(r *Request) { r.Receipt.AmountPaid = "mil" }, "amountPaid"},
		{"reference", func(r *Request) { r.Receipt.ReferenceNumber = " " }, "referenceNumber"},
		{"image size", func(r *Request) { r.Image = pngImage(5<<20 + 1) }, "receiptImage"},
		{"image type", func(r *Request) {
			r.Image = &Image{Filename: "x.pdf", Size: 10, ContentType: "application/pdf", Body: strings.NewReader("%PDF")}
		}, "receiptImage"},
		{"unknown payment method", func(r *Request) { r.PaymentMethodID = primitive.NewObjectID().Hex() }, "paymentMethodId"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(false, gloves(1))
			req := h.request()
			tc.edit(&req)

			_, err := h.wf.Place(context.Background(), req)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
			assert.Empty(t, h.orders.orders)
			assert.Empty(t, h.uploader.uploads)
		})
	}
}

func TestPlace_PreconditionErrors(t *testing.T) {
	h := newHarness(false, gloves(1))
	req := h.request()
	req.UserID = primitive.NilObjectID
	_, err := h.wf.Place(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	empty := newHarness(false)
	_, err = empty.wf.Place(context.Background(), empty.request())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, empty.orders.calls)
}

func TestPlace_OrderInsertFailure(t *testing.T) {
	h := newHarness(true, gloves(1))
	h.orders.failOrder = errors.New("insert rejected")

	_, err := h.wf.Place(context.Background(), h.request())

	assert.ErrorIs(t, err, ErrOrderInsertFailed)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.True(t, stepErr.OrderID.IsZero())
	assert.Empty(t, h.orders.deleted)
}

func TestPlace_ItemsFailureLeavesOrphanedOrder(t *testing.T) {
	h := newHarness(false, gloves(2))
	h.orders.failItems = errors.New("network error")

	_, err := h.wf.Place(context.Background(), h.request())

	assert.ErrorIs(t, err, ErrItemsInsertFailed)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.False(t, stepErr.OrderID.IsZero())
	assert.False(t, stepErr.Compensated)
	assert.Contains(t, err.Error(), stepErr.OrderID.Hex())

	order, ok := h.orders.orders[stepErr.OrderID]
	require.True(t, ok)
	assert.Equal(t, models.OrderPendingVerification, order.Status)
	assert.Empty(t, h.orders.items)
	assert.Empty(t, h.orders.receipts)
	assert.Equal(t, 0, h.carts.cleared)
	assert.Empty(t, h.publisher.types)
}

func TestPlace_ItemsFailureCompensates(t *testing.T) {
	h := newHarness(true, gloves(2))
	h.orders.failItems = errors.New("network error")

	_, err := h.wf.Place(context.Background(), h.request())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.True(t, stepErr.Compensated)
	assert.Equal(t, []primitive.ObjectID{stepErr.OrderID}, h.orders.deleted)
	assert.Empty(t, h.orders.orders)
}

func TestPlace_UploadFailureKeepsOrderAndItems(t *testing.T) {
	h := newHarness(false, gloves(1))
	h.uploader.err = errors.New("bucket unavailable")
	req := h.request()
	req.Image = pngImage(2048)

	_, err := h.wf.Place(context.Background(), req)

	assert.ErrorIs(t, err, ErrReceiptUploadFailed)
	assert.Len(t, h.orders.orders, 1)
	assert.Len(t, h.orders.items, 1)
	assert.Empty(t, h.orders.receipts)
}

func TestPlace_ReceiptFailureCompensatesAndRemovesUpload(t *testing.T) {
	h := newHarness(true, gloves(1))
	h.orders.failReceipt = errors.New("constraint violation")
	req := h.request()
	req.Image = pngImage(2048)

	_, err := h.wf.Place(context.Background(), req)

	assert.ErrorIs(t, err, ErrReceiptInsertFailed)
	assert.Len(t, h.uploader.deletes, 1)
	assert.Equal(t, h.uploader.uploads, h.uploader.deletes)
	assert.Empty(t, h.orders.orders)
	assert.Empty(t, h.orders.items)
}

func TestSubmitReceipt(t *testing.T) {
	h := newHarness(false, gloves(2))
	h.orders.failReceipt = errors.New("timeout")
	_, err := h.wf.Place(context.Background(), h.request())
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	h.orders.failReceipt = nil

	details := h.request().Receipt
	res, err := h.wf.SubmitReceipt(context.Background(), h.userID, stepErr.OrderID, details, pngImage(100))
	require.NoError(t, err)
	assert.Equal(t, stepErr.OrderID, res.OrderID)
	require.Len(t, h.orders.receipts, 1)
	assert.Equal(t, 4599.00, h.orders.receipts[0].AmountPaid)
	assert.Contains(t, h.publisher.types, "receipt.submitted")

	_, err = h.wf.SubmitReceipt(context.Background(), h.userID, stepErr.OrderID, details, nil)
	assert.ErrorIs(t, err, ErrReceiptExists)

	_, err = h.wf.SubmitReceipt(context.Background(), primitive.NewObjectID(), stepErr.OrderID, details, nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = h.wf.SubmitReceipt(context.Background(), h.userID, primitive.NewObjectID(), details, nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSubmitReceipt_ExplicitAmount(t *testing.T) {
	h := newHarness(false, gloves(1))
	orderID, err := h.orders.InsertOrder(context.Background(), models.Order{UserID: h.userID, TotalLocal: 2299.5, PaymentMethodID: h.methodID})
	require.NoError(t, err)

	details := h.request().Receipt
	details.AmountPaid = "2300"
	_, err = h.wf.SubmitReceipt(context.Background(), h.userID, orderID, details, nil)
	require.NoError(t, err)
	assert.Equal(t, 2300.0, h.orders.receipts[0].AmountPaid)
	require.NotNil(t, h.orders.receipts[0].PaymentMethodID)
	assert.Equal(t, h.methodID, *h.orders.receipts[0].PaymentMethodID)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "El nombre es obligatorio", UserMessage(&ValidationError{Field: "firstName", Message: "El nombre es obligatorio"}))
	assert.Equal(t, "El carrito está vacío", UserMessage(ErrEmptyCart))
	assert.Equal(t, "Error al crear los productos de la orden", UserMessage(&StepError{Step: StepItems, Err: errors.New("x")}))
	assert.Equal(t, "Error desconocido", UserMessage(errors.New("x")))
}
