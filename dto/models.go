package dto

import "github.com/shopspring/decimal"

// HeaderFields are the printed summary values of an invoice. Every field is optional.
type HeaderFields struct {
	Subtotal decimal.NullDecimal `json:"declared_subtotal"`
	Tax      decimal.NullDecimal `json:"declared_tax"`
	Total    decimal.NullDecimal `json:"declared_total"`
	TaxRate  decimal.NullDecimal `json:"tax_rate"`
}

// FillFrom returns h with every missing field taken from other.
func (h HeaderFields) FillFrom(other HeaderFields) HeaderFields {
	if !h.Subtotal.Valid {
		h.Subtotal = other.Subtotal
	}
	if !h.Tax.Valid {
		h.Tax = other.Tax
	}
	if !h.Total.Valid {
		h.Total = other.Total
	}
	if !h.TaxRate.Valid {
		h.TaxRate = other.TaxRate
	}
	return h
}

func (h HeaderFields) IsEmpty() bool {
	return !h.Subtotal.Valid && !h.Tax.Valid && !h.Total.Valid && !h.TaxRate.Valid
}

// PaymentQR is the content of a payment QR code printed on an invoice.
type PaymentQR struct {
	Format      string          `json:"format"`
	Beneficiary string          `json:"beneficiary,omitempty"`
	IBAN        string          `json:"iban,omitempty"`
	Currency    string          `json:"currency,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
}
