package utils

import (
	"strings"

	"github.com/Aashish23092/invoice-line-verification/dto"
)

// ParsePaymentQR understands the two payment QR payloads commonly printed on
// European invoices: the EPC "BCD" SEPA credit transfer and the Swiss "SPC"
// QR-bill. It reports false when the payload carries no usable amount.
func ParsePaymentQR(payload string) (dto.PaymentQR, bool) {
	lines := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	if len(lines) == 0 {
		return dto.PaymentQR{}, false
	}

	switch lines[0] {
	case "BCD":
		return parseEPC(lines)
	case "SPC":
		return parseSwissQR(lines)
	}
	return dto.PaymentQR{}, false
}

// EPC069-12: BCD, version, charset, SCT, BIC, name, IBAN, "EUR12.34", purpose, reference, text.
func parseEPC(lines []string) (dto.PaymentQR, bool) {
	if len(lines) < 8 || lines[3] != "SCT" {
		return dto.PaymentQR{}, false
	}

	amountField := lines[7]
	if len(amountField) < 4 {
		return dto.PaymentQR{}, false
	}
	amount := NormalizeNumeric(amountField[3:])
	if !amount.Valid {
		return dto.PaymentQR{}, false
	}

	qr := dto.PaymentQR{
		Format:      "epc",
		Beneficiary: lines[5],
		IBAN:        lines[6],
		Currency:    amountField[:3],
		Amount:      amount.Decimal,
	}
	if len(lines) > 9 {
		qr.Reference = lines[9]
	}
	return qr, true
}

// Swiss QR-bill 2.x: amount and currency follow the creditor and ultimate creditor blocks.
func parseSwissQR(lines []string) (dto.PaymentQR, bool) {
	if len(lines) < 20 {
		return dto.PaymentQR{}, false
	}

	amount := NormalizeNumeric(lines[18])
	if !amount.Valid {
		return dto.PaymentQR{}, false
	}

	qr := dto.PaymentQR{
		Format:      "swiss_qr",
		IBAN:        lines[3],
		Beneficiary: lines[5],
		Currency:    lines[19],
		Amount:      amount.Decimal,
	}
	if len(lines) > 28 {
		qr.Reference = lines[28]
	}
	return qr, true
}
