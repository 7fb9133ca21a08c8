package analysis

import "github.com/kirillkom/docflow/internal/core/domain"

const sampleInvoiceText = `FACTURA FISCALA
Seria FCT nr. FCT-00123
Data emiterii: 05.03.2024
Data scadentei: 04.04.2024
Furnizor: SC Alfa Consulting SRL
CIF: RO18547290
Cumparator: SC Beta Retail SRL
CIF: RO31587640
1. Servicii consultanta 2 x 500,00 = 1.000,00
Total fara TVA: 1.000,00
TVA 19%: 190,00
Total de plata: 1.190,00 RON
IBAN: RO37BTRL0000000000000001`

const sampleReceiptText = `SC Gamma Market SRL
CIF: RO14082930
BON FISCAL
Data: 12.03.2024
Paine alba 2 x 4,50 = 9,00
TOTAL: 59,50 LEI
TVA 9%: 4,91`

func invoiceDocument() domain.Document {
	return domain.Document{ID: "doc-1", Filename: "factura-001.pdf", MediaType: "application/pdf", PageCount: 1}
}

func ocrOf(text string, confidence float64) domain.OCRResult {
	return domain.OCRResult{
		Text:       text,
		Confidence: confidence,
		Pages:      []domain.PageResult{{PageNumber: 1, Text: text, Confidence: confidence}},
	}
}

func fieldByName(fields []domain.ExtractedField, name string) (domain.ExtractedField, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return domain.ExtractedField{}, false
}
