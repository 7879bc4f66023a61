package checkout

import (
	"errors"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/sanitize"
	"storefront/internal/storage"
)

// Shipping is the raw form input; blanks are normalized on write.
type Shipping struct {
	FirstName string `json:"firstName" form:"firstName"`
	LastName  string `json:"lastName" form:"lastName"`
	Phone     string `json:"phone" form:"phone"`
	Address   string `json:"address" form:"address"`
	City      string `json:"city" form:"city"`
	State     string `json:"state" form:"state"`
	ZipCode   string `json:"zipCode" form:"zipCode"`
}

type ReceiptDetails struct {
	HolderName      string `json:"holderName" form:"holderName"`
	HolderPhone     string `json:"holderPhone" form:"holderPhone"`
	HolderCedula    string `json:"holderCedula" form:"holderCedula"`
	BankUsed        string `json:"bankUsed" form:"bankUsed"`
	AmountPaid      string `json:"amountPaid" form:"amountPaid"`
	ReferenceNumber string `json:"referenceNumber" form:"referenceNumber"`
}

// Image is an uploaded receipt picture. ContentType should come from sniffing
// the bytes, not from the client header.
type Image struct {
	Filename    string
	Size        int64
	ContentType string
	Body        io.Reader
}

type Request struct {
	UserID          primitive.ObjectID
	Shipping        Shipping
	PaymentMethodID string
	Notes           string
	Receipt         ReceiptDetails
	Image           *Image
}

type requiredField struct {
	name    string
	value   string
	message string
}

func firstBlank(fields []requiredField) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Message: f.message}
		}
	}
	return nil
}

func validateShipping(s Shipping, paymentMethodID string) (primitive.ObjectID, error) {
	if err := firstBlank([]requiredField{
		{"firstName", s.FirstName, "El nombre es obligatorio"},
		{"lastName", s.LastName, "El apellido es obligatorio"},
		{"phone", s.Phone, "El teléfono es obligatorio"},
		{"address", s.Address, "La dirección es obligatoria"},
		{"city", s.City, "La ciudad es obligatoria"},
		{"state", s.State, "El estado es obligatorio"},
		{"paymentMethodId", paymentMethodID, "Selecciona un método de pago"},
	}); err != nil {
		return primitive.NilObjectID, err
	}
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(paymentMethodID))
	if err != nil {
		return primitive.NilObjectID, &ValidationError{Field: "paymentMethodId", Message: "Selecciona un método de pago"}
	}
	return id, nil
}

// validateReceipt checks the holder fields. amountPaid is checked separately
// because its default depends on the order total.
func validateReceipt(r ReceiptDetails) error {
	if err := firstBlank([]requiredField{
		{"holderName", r.HolderName, "El nombre del titular es obligatorio"},
		{"holderPhone", r.HolderPhone, "El teléfono es obligatorio"},
		{"holderCedula", r.HolderCedula, "La cédula es obligatoria"},
		{"bankUsed", r.BankUsed, "El banco utilizado es obligatorio"},
	}); err != nil {
		return err
	}
	if amount := strings.TrimSpace(r.AmountPaid); amount != "" {
		if !sanitize.IsNumeric(amount) || sanitize.NumericOrZero(amount) <= 0 {
			return &ValidationError{Field: "amountPaid", Message: "El monto pagado debe ser un número válido"}
		}
	}
	return firstBlank([]requiredField{
		{"referenceNumber", r.ReferenceNumber, "El número de referencia es obligatorio"},
	})
}

func validateImage(img *Image) error {
	if img == nil {
		return nil
	}
	err := storage.CheckImage(img.Size, img.ContentType)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrImageTooLarge):
		return &ValidationError{Field: "receiptImage", Message: "La imagen no puede superar 5MB"}
	default:
		return &ValidationError{Field: "receiptImage", Message: "Solo se permiten archivos de imagen"}
	}
}

func normalizeShipping(s Shipping) models.ShippingAddress {
	return models.ShippingAddress{
		FirstName: sanitize.NullableString(s.FirstName),
		LastName:  sanitize.NullableString(s.LastName),
		Phone:     sanitize.NullableString(s.Phone),
		Address:   sanitize.NullableString(s.Address),
		City:      sanitize.NullableString(s.City),
		State:     sanitize.NullableString(s.State),
		ZipCode:   sanitize.NullableString(s.ZipCode),
	}
}

func amountPaid(raw string, fallback decimal.Decimal) float64 {
	if strings.TrimSpace(raw) == "" {
		return fallback.InexactFloat64()
	}
	return decimal.NewFromFloat(sanitize.NumericOrZero(raw)).Round(2).InexactFloat64()
}
