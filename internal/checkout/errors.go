package checkout

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrOrderInsertFailed   = errors.New("order insert failed")
	ErrItemsInsertFailed   = errors.New("order items insert failed")
	ErrReceiptUploadFailed = errors.New("receipt upload failed")
	ErrReceiptInsertFailed = errors.New("receipt insert failed")
	ErrOrderNotFound       = errors.New("order not found")
	ErrReceiptExists       = errors.New("order already has a receipt")
)

// ValidationError names the first field that failed. Nothing has been written
// when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

type Step string

const (
	StepOrder   Step = "order_insert"
	StepItems   Step = "items_insert"
	StepUpload  Step = "receipt_upload"
	StepReceipt Step = "receipt_insert"
)

func (s Step) sentinel() error {
	switch s {
	case StepOrder:
		return ErrOrderInsertFailed
	case StepItems:
		return ErrItemsInsertFailed
	case StepUpload:
		return ErrReceiptUploadFailed
	default:
		return ErrReceiptInsertFailed
	}
}

// StepError reports a failed write. OrderID is set once the order header
// exists so an operator can find what was left behind.
type StepError struct {
	Step        Step
	OrderID     primitive.ObjectID
	Compensated bool
	Err         error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("checkout %s failed", e.Step)
	if !e.OrderID.IsZero() {
		msg += " for order " + e.OrderID.Hex()
		if e.Compensated {
			msg += " (rolled back)"
		}
	}
	return msg + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() []error {
	return []error{e.Step.sentinel(), e.Err}
}

// UserMessage turns a workflow error into text fit for a shopper.
func UserMessage(err error) string {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "Debes iniciar sesión para realizar una compra"
	case errors.Is(err, ErrEmptyCart):
		return "El carrito está vacío"
	case errors.Is(err, ErrOrderInsertFailed):
		return "Error al crear la orden"
	case errors.Is(err, ErrItemsInsertFailed):
		return "Error al crear los productos de la orden"
	case errors.Is(err, ErrReceiptUploadFailed):
		return "Error al subir la imagen del comprobante"
	case errors.Is(err, ErrReceiptInsertFailed):
		return "Error al enviar el comprobante"
	case errors.Is(err, ErrOrderNotFound):
		return "Orden no encontrada"
	case errors.Is(err, ErrReceiptExists):
		return "Esta orden ya tiene un comprobante de pago"
	}
	return "Error desconocido"
}
