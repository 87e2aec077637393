package integration

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ReceiveLine is one received item.
type ReceiveLine struct {
	ItemID      uuid.UUID       `validate:"required"`
	WarehouseID uuid.UUID       `validate:"required"`
	Quantity    decimal.Decimal `validate:"gt=0"`
	UnitCost    decimal.Decimal `validate:"gte=0"`
	BatchNumber string          `validate:"max=64"`
}

// ReceiveGoodsRequest is a goods receipt note.
type ReceiveGoodsRequest struct {
	CompanyID         uuid.UUID `validate:"required"`
	Number            string    `validate:"max=64"`
	Date              time.Time `validate:"required"`
	SupplierAccountID uuid.UUID `validate:"required"`
	Description       string
	ActorID           uuid.UUID
	Lines             []ReceiveLine `validate:"required,min=1,dive"`
}

// DeliverLine is one delivered item sold at UnitPrice.
type DeliverLine struct {
	ItemID      uuid.UUID       `validate:"required"`
	WarehouseID uuid.UUID       `validate:"required"`
	Quantity    decimal.Decimal `validate:"gt=0"`
	UnitPrice   decimal.Decimal `validate:"gte=0"`
	BatchNumber string          `validate:"max=64"`
}

// DeliverGoodsRequest is an outbound delivery note.
type DeliverGoodsRequest struct {
	CompanyID           uuid.UUID `validate:"required"`
	Number              string    `validate:"max=64"`
	Date                time.Time `validate:"required"`
	ReceivableAccountID uuid.UUID `validate:"required"`
	// RevenueAccountID is used for items without their own revenue account.
	RevenueAccountID uuid.UUID
	CustomerID       *uuid.UUID
	Description      string
	ActorID          uuid.UUID
	Lines            []DeliverLine `validate:"required,min=1,dive"`
}

// AmountLine books Amount against AccountID.
type AmountLine struct {
	AccountID   uuid.UUID       `validate:"required"`
	Amount      decimal.Decimal `validate:"gt=0"`
	Description string
}

// InvoiceRequest is a sales invoice.
type InvoiceRequest struct {
	CompanyID           uuid.UUID `validate:"required"`
	Number              string    `validate:"max=64"`
	Date                time.Time `validate:"required"`
	ReceivableAccountID uuid.UUID `validate:"required"`
	Description         string
	ActorID             uuid.UUID
	Lines               []AmountLine `validate:"required,min=1,dive"`
}

// CreditNoteRequest credits a customer's receivable.
type CreditNoteRequest struct {
	CompanyID           uuid.UUID `validate:"required"`
	Number              string    `validate:"max=64"`
	Date                time.Time `validate:"required"`
	ReceivableAccountID uuid.UUID `validate:"required"`
	Description         string
	ActorID             uuid.UUID
	Lines               []AmountLine `validate:"required,min=1,dive"`
}

// BillRequest is a supplier bill booked to expense lines.
type BillRequest struct {
	CompanyID        uuid.UUID `validate:"required"`
	Number           string    `validate:"max=64"`
	Date             time.Time `validate:"required"`
	PayableAccountID uuid.UUID `validate:"required"`
	Description      string
	ActorID          uuid.UUID
	Lines            []AmountLine `validate:"required,min=1,dive"`
}

// PaymentVoucherRequest pays an expense or payable from cash or bank.
// Settlements pay down bills booked to DebitAccountID.
type PaymentVoucherRequest struct {
	CompanyID         uuid.UUID       `validate:"required"`
	Number            string          `validate:"max=64"`
	Date              time.Time       `validate:"required"`
	DebitAccountID    uuid.UUID       `validate:"required"`
	CashBankAccountID uuid.UUID       `validate:"required"`
	Amount            decimal.Decimal `validate:"gt=0"`
	Description       string
	ActorID           uuid.UUID
	Settlements       []Settlement `validate:"dive"`
}

// ReceiptVoucherRequest receives cash or bank against a receivable or revenue.
// Settlements pay down invoices booked to CreditAccountID.
type ReceiptVoucherRequest struct {
	CompanyID         uuid.UUID       `validate:"required"`
	Number            string          `validate:"max=64"`
	Date              time.Time       `validate:"required"`
	CashBankAccountID uuid.UUID       `validate:"required"`
	CreditAccountID   uuid.UUID       `validate:"required"`
	Amount            decimal.Decimal `validate:"gt=0"`
	Description       string
	ActorID           uuid.UUID
	Settlements       []Settlement `validate:"dive"`
}

// newValidator maps decimals to float64 and UUIDs to strings so standard
// tags apply at the boundary. Arithmetic never uses the mapped values.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if id, ok := field.Interface().(uuid.UUID); ok && id != uuid.Nil {
			return id.String()
		}
		return ""
	}, uuid.UUID{})
	return v
}

// check runs struct validation and folds failures into one ErrValidation.
func check(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: integration: %v", shared.ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: integration: %s", shared.ErrValidation, strings.Join(msgs, "; "))
}
