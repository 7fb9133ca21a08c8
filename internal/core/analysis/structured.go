package analysis

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/docflow/internal/core/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var reLineItem = regexp.MustCompile(`(?m)^\s*\d{1,3}[.)]\s+(.+?)\s+(\d+(?:[.,]\d{1,3})?)\s*(?:x|X|buc\s*x)\s*(\d{1,3}(?:\.\d{3})+,\d{2}|\d+(?:[.,]\d{2})?)\s*=\s*(\d{1,3}(?:\.\d{3})+,\d{2}|\d+(?:[.,]\d{2})?)`)

// StructuredBuilder assembles the typed record for a classified document and
// checks it against the embedded record schemas.
type StructuredBuilder struct {
	currency string
	schemas  map[domain.DocumentType]*jsonschema.Schema
}

func NewStructuredBuilder(rs Ruleset) (*StructuredBuilder, error) {
	schemas := make(map[domain.DocumentType]*jsonschema.Schema, 3)
	for docType, file := range map[domain.DocumentType]string{
		domain.DocumentInvoice:  "invoice.json",
		domain.DocumentReceipt:  "receipt.json",
		domain.DocumentContract: "contract.json",
	} {
		raw, err := schemaFS.ReadFile("schemas/" + file)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", file, err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(file, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", file, err)
		}
		schema, err := compiler.Compile(file)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		schemas[docType] = schema
	}
	return &StructuredBuilder{currency: rs.Jurisdiction.Currency, schemas: schemas}, nil
}

// Build returns the populated variant and any schema issues found in it.
// INVALID fields are left out of the record.
func (b *StructuredBuilder) Build(cls domain.Classification, fields []domain.ExtractedField, text string) (domain.Structured, []string) {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		if f.ValidationStatus == domain.ValidationInvalid {
			continue
		}
		values[f.Name] = f.Value
	}
	currency := values["currency"]
	if currency == "" {
		currency = b.currency
	}

	var (
		out    domain.Structured
		record any
	)
	switch cls.DocumentType {
	case domain.DocumentInvoice:
		out.Invoice = &domain.InvoiceData{
			InvoiceNumber: values["invoiceNumber"],
			IssueDate:     values["issueDate"],
			DueDate:       values["dueDate"],
			SupplierTaxID: values["supplierTaxId"],
			CustomerTaxID: values["customerTaxId"],
			TotalAmount:   amountPtr(values["totalAmount"]),
			VATAmount:     amountPtr(values["vatAmount"]),
			Currency:      currency,
			IBAN:          values["iban"],
			LineItems:     parseLineItems(text),
		}
		record = out.Invoice
	case domain.DocumentReceipt:
		out.Receipt = &domain.ReceiptData{
			MerchantTaxID: values["merchantTaxId"],
			Date:          values["receiptDate"],
			TotalAmount:   amountPtr(values["totalAmount"]),
			VATAmount:     amountPtr(values["vatAmount"]),
			Currency:      currency,
		}
		record = out.Receipt
	case domain.DocumentContract:
		out.Contract = &domain.ContractData{
			ContractNumber: values["contractNumber"],
			SubType:        cls.SubType,
			SignDate:       values["signDate"],
			PartyTaxID:     values["partyTaxId"],
			Value:          amountPtr(values["contractValue"]),
			Currency:       currency,
		}
		record = out.Contract
	default:
		return out, nil
	}

	return out, b.check(cls.DocumentType, record)
}

func (b *StructuredBuilder) check(docType domain.DocumentType, record any) []string {
	schema, ok := b.schemas[docType]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return []string{fmt.Sprintf("structured record could not be encoded: %v", err)}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return []string{fmt.Sprintf("structured record could not be decoded: %v", err)}
	}
	if err := schema.Validate(v); err != nil {
		return []string{fmt.Sprintf("structured %s record does not match schema: %s", strings.ToLower(string(docType)), schemaMessage(err))}
	}
	return nil
}

func schemaMessage(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		return leaf.InstanceLocation + ": " + leaf.Message
	}
	return err.Error()
}

func amountPtr(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, ok := parseAmount(raw)
	if !ok {
		return nil
	}
	return &v
}

func parseLineItems(text string) []domain.LineItem {
	items := make([]domain.LineItem, 0)
	for _, m := range reLineItem.FindAllStringSubmatch(text, -1) {
		qty, okQty := parseAmount(m[2])
		price, okPrice := parseAmount(m[3])
		amount, okAmount := parseAmount(m[4])
		if !okQty || !okPrice || !okAmount {
			continue
		}
		items = append(items, domain.LineItem{
			Description: strings.TrimSpace(m[1]),
			Quantity:    qty,
			UnitPrice:   price,
			Amount:      amount,
		})
	}
	return items
}
