package domain

import "time"

type DocumentType string

const (
	DocumentInvoice  DocumentType = "INVOICE"
	DocumentReceipt  DocumentType = "RECEIPT"
	DocumentContract DocumentType = "CONTRACT"
	DocumentPayslip  DocumentType = "PAYSLIP"
	DocumentOther    DocumentType = "OTHER"
)

type Classification struct {
	DocumentType             DocumentType `json:"document_type"`
	SubType                  string       `json:"sub_type,omitempty"`
	Confidence               float64      `json:"confidence"`
	Language                 string       `json:"language"`
	IsJurisdictionLanguage   bool         `json:"is_jurisdiction_language"`
	HasJurisdictionRelevance bool         `json:"has_jurisdiction_relevance"`
	SuggestedWorkflow        string       `json:"suggested_workflow"`
}

type PageResult struct {
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type OCRResult struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Language   string       `json:"language"`
	Engine     string       `json:"engine,omitempty"`
	Pages      []PageResult `json:"page_results"`
}

type EntityType string

const (
	EntityTaxID          EntityType = "TAX_ID"
	EntityDate           EntityType = "DATE"
	EntityAmount         EntityType = "AMOUNT"
	EntityIBAN           EntityType = "IBAN"
	EntityDocumentNumber EntityType = "DOCUMENT_NUMBER"
	EntityEmail          EntityType = "EMAIL"
)

// ExtractedEntity keeps byte offsets into the recognized text for traceability.
type ExtractedEntity struct {
	Type       EntityType `json:"type"`
	Raw        string     `json:"raw"`
	Normalized string     `json:"normalized"`
	Confidence float64    `json:"confidence"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
}

type FieldDataType string

const (
	FieldText     FieldDataType = "TEXT"
	FieldNumber   FieldDataType = "NUMBER"
	FieldDate     FieldDataType = "DATE"
	FieldCurrency FieldDataType = "CURRENCY"
	FieldBoolean  FieldDataType = "BOOLEAN"
)

type ValidationStatus string

const (
	ValidationValid       ValidationStatus = "VALID"
	ValidationInvalid     ValidationStatus = "INVALID"
	ValidationNeedsReview ValidationStatus = "NEEDS_REVIEW"
)

type ExtractedField struct {
	Name             string           `json:"field_name"`
	DisplayName      string           `json:"field_name_ro"`
	DataType         FieldDataType    `json:"data_type"`
	Value            string           `json:"value"`
	Confidence       float64          `json:"confidence"`
	ValidationStatus ValidationStatus `json:"validation_status"`
}

type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

type InvoiceData struct {
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	IssueDate     string     `json:"issue_date,omitempty"`
	DueDate       string     `json:"due_date,omitempty"`
	SupplierTaxID string     `json:"supplier_tax_id,omitempty"`
	CustomerTaxID string     `json:"customer_tax_id,omitempty"`
	TotalAmount   *float64   `json:"total_amount,omitempty"`
	VATAmount     *float64   `json:"vat_amount,omitempty"`
	Currency      string     `json:"currency"`
	IBAN          string     `json:"iban,omitempty"`
	LineItems     []LineItem `json:"line_items"`
}

type ReceiptData struct {
	MerchantTaxID string   `json:"merchant_tax_id,omitempty"`
	Date          string   `json:"date,omitempty"`
	TotalAmount   *float64 `json:"total_amount,omitempty"`
	VATAmount     *float64 `json:"vat_amount,omitempty"`
	Currency      string   `json:"currency"`
}

type ContractData struct {
	ContractNumber string   `json:"contract_number,omitempty"`
	SubType        string   `json:"sub_type,omitempty"`
	SignDate       string   `json:"sign_date,omitempty"`
	PartyTaxID     string   `json:"party_tax_id,omitempty"`
	Value          *float64 `json:"value,omitempty"`
	Currency       string   `json:"currency"`
}

// Structured holds at most one populated variant.
type Structured struct {
	Invoice  *InvoiceData  `json:"invoice_data,omitempty"`
	Receipt  *ReceiptData  `json:"receipt_data,omitempty"`
	Contract *ContractData `json:"contract_data,omitempty"`
}

func (s Structured) IsEmpty() bool {
	return s.Invoice == nil && s.Receipt == nil && s.Contract == nil
}

type AnalysisStatus string

const (
	AnalysisCompleted   AnalysisStatus = "COMPLETED"
	AnalysisNeedsReview AnalysisStatus = "NEEDS_REVIEW"
	AnalysisFailed      AnalysisStatus = "FAILED"
)

type SuggestedAction struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Automated   bool   `json:"automated"`
	Channel     string `json:"channel,omitempty"`
}

// Verdict is the arbiter's decision over one analysis run.
type Verdict struct {
	OverallConfidence float64
	NeedsManualReview bool
	ReviewReasons     []string
	Status            AnalysisStatus
}

type AnalysisResult struct {
	ID                 string            `json:"id"`
	DocumentID         string            `json:"document_id"`
	Classification     Classification    `json:"classification"`
	OCR                OCRResult         `json:"ocr_result"`
	Entities           []ExtractedEntity `json:"entities"`
	Fields             []ExtractedField  `json:"fields"`
	Structured         Structured        `json:"structured"`
	OverallConfidence  float64           `json:"overall_confidence"`
	NeedsManualReview  bool              `json:"needs_manual_review"`
	Status             AnalysisStatus    `json:"status"`
	ReviewReasons      []string          `json:"review_reasons"`
	Insights           []string          `json:"insights"`
	SuggestedActions   []SuggestedAction `json:"suggested_actions"`
	ProcessingDuration time.Duration     `json:"processing_duration_ns"`
	RulesetVersion     string            `json:"ruleset_version"`
	CompletedAt        time.Time         `json:"completed_at"`
}

func (r AnalysisResult) Field(name string) (ExtractedField, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ExtractedField{}, false
}
