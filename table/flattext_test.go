package table

import (
	"testing"

	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wrappedInvoiceText = `ACME SUPPLIES LTD
Invoice 1042
Qty Description Rate Amount
Storage Unit 5 24.99 124.95
Rate Card Display
10.5 15.00
157.50
Flat Fee Service 1 100.00 100.00
Subtotal 382.45
VAT 20% 76.49
Total 458.94
Thank you for your business`

func TestParseFlatTextWrappedEntries(t *testing.T) {
	rec := parseFlatText(wrappedInvoiceText, newReconstructor(nil, config.DefaultPipelineConfig()))

	require.Len(t, rec.items, 3)
	assert.Equal(t, "Storage Unit", rec.items[0].Description)
	assertDecimal(t, "124.95", rec.items[0].LineTotal)

	assert.Equal(t, "Rate Card Display", rec.items[1].Description)
	assertDecimal(t, "10.5", rec.items[1].Quantity)
	assertDecimal(t, "15", rec.items[1].UnitPrice)
	assertDecimal(t, "157.5", rec.items[1].LineTotal)

	assert.Equal(t, "Flat Fee Service", rec.items[2].Description)
	assert.Equal(t, map[int]bool{3: true, 4: true, 5: true, 6: true, 7: true}, rec.consumed)

	assertDecimal(t, "382.45", rec.summary.Subtotal)
	assertDecimal(t, "76.49", rec.summary.Tax)
	assertDecimal(t, "0.2", rec.summary.TaxRate)
	assertDecimal(t, "458.94", rec.summary.Total)
}

func TestParseFlatTextRecordsTransitions(t *testing.T) {
	rec := parseFlatText(wrappedInvoiceText, newReconstructor(nil, config.DefaultPipelineConfig()))

	assert.Contains(t, rec.notes, "flat text: seeking_header->in_table@2")
	assert.Contains(t, rec.notes, "flat text: seeking_summary->done@8")
}

func TestParseFlatTextWithoutHeader(t *testing.T) {
	rec := parseFlatText("Consulting services 150.00\nTravel 2 45.50", newReconstructor(nil, config.DefaultPipelineConfig()))

	require.Len(t, rec.items, 2)
	assertDecimal(t, "150", rec.items[0].LineTotal)

	// two figures: an integer first figure is read as the quantity
	assertDecimal(t, "2", rec.items[1].Quantity)
	assertDecimal(t, "22.75", rec.items[1].UnitPrice)
	assert.Contains(t, rec.notes, "flat text: no header line found, treating every line as table body")
}

func TestParseFlatTextTwoFiguresPrice(t *testing.T) {
	rec := parseFlatText("Item Amount\nLabour 35.00 70.00", newReconstructor(nil, config.DefaultPipelineConfig()))

	require.Len(t, rec.items, 1)
	assertDecimal(t, "35", rec.items[0].UnitPrice)
	assertDecimal(t, "2", rec.items[0].Quantity)
}

func TestParseFlatTextCapsContinuationLines(t *testing.T) {
	text := "Description Qty Price Total\nBolts\n1\n2\n3\n4"

	rec := parseFlatText(text, newReconstructor(nil, config.DefaultPipelineConfig()))

	require.Len(t, rec.items, 2)
	assert.Equal(t, "Bolts", rec.items[0].Description)
	assertDecimal(t, "3", rec.items[0].LineTotal)
	assert.Equal(t, "", rec.items[1].Description)
	assertDecimal(t, "4", rec.items[1].LineTotal)
}

func TestSplitTrailingFigures(t *testing.T) {
	desc, values := splitTrailingFigures([]string{"Oil", "5W30", "2", "£", "14.50"})

	assert.Equal(t, []string{"Oil", "5W30"}, desc)
	require.Len(t, values, 2)
	assert.Equal(t, "2", values[0].raw)
	assert.Equal(t, "14.50", values[1].raw)
}
