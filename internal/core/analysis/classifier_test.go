package analysis

import (
	"math"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestClassifyInvoiceByFilenameAndText(t *testing.T) {
	c := NewClassifier(DefaultRuleset())

	cls := c.Classify(invoiceDocument(), sampleInvoiceText)
	if cls.DocumentType != domain.DocumentInvoice {
		t.Fatalf("expected INVOICE, got %s", cls.DocumentType)
	}
	if cls.Confidence < 0.9 || cls.Confidence > 1 {
		t.Fatalf("expected agreement to lift confidence above 0.9, got %v", cls.Confidence)
	}
	if !cls.HasJurisdictionRelevance || !cls.IsJurisdictionLanguage || cls.Language != "ro" {
		t.Fatalf("unexpected jurisdiction flags: %+v", cls)
	}
	if cls.SuggestedWorkflow != "invoice-approval-workflow" {
		t.Fatalf("unexpected workflow %q", cls.SuggestedWorkflow)
	}
	if cls.SubType != "" {
		t.Fatalf("sub-type must stay empty for invoices, got %q", cls.SubType)
	}
}

func TestClassifyReceiptFromFilenameOnly(t *testing.T) {
	c := NewClassifier(DefaultRuleset())
	doc := domain.Document{Filename: "bon-fiscal.jpg", MediaType: "image/jpeg"}

	cls := c.Classify(doc, "")
	if cls.DocumentType != domain.DocumentReceipt {
		t.Fatalf("expected RECEIPT, got %s", cls.DocumentType)
	}
	// keyword + media type + two distinct keywords
	if math.Abs(cls.Confidence-0.75) > 1e-9 {
		t.Fatalf("expected confidence 0.75, got %v", cls.Confidence)
	}
	if cls.SuggestedWorkflow != "expense-reimbursement-workflow" {
		t.Fatalf("unexpected workflow %q", cls.SuggestedWorkflow)
	}
}

func TestClassifyPriorityFirstMatchWins(t *testing.T) {
	c := NewClassifier(DefaultRuleset())
	doc := domain.Document{Filename: "contract-factura.pdf", MediaType: "application/pdf"}

	cls := c.Classify(doc, "Contract de prestari servicii si bon fiscal")
	if cls.DocumentType != domain.DocumentInvoice {
		t.Fatalf("invoice rule must win over lower priorities, got %s", cls.DocumentType)
	}
}

func TestClassifyContractSubType(t *testing.T) {
	c := NewClassifier(DefaultRuleset())
	doc := domain.Document{Filename: "cim-popescu.pdf", MediaType: "application/pdf"}

	cls := c.Classify(doc, "CONTRACT INDIVIDUAL DE MUNCĂ\nAngajator: SC Delta SRL\nAngajat: Ion Popescu")
	if cls.DocumentType != domain.DocumentContract {
		t.Fatalf("expected CONTRACT, got %s", cls.DocumentType)
	}
	if cls.SubType != "EMPLOYMENT" {
		t.Fatalf("expected EMPLOYMENT sub-type, got %q", cls.SubType)
	}
	if cls.HasJurisdictionRelevance {
		t.Fatalf("contracts are not jurisdiction relevant by default")
	}
}

func TestClassifyContractWithoutSubTypeKeywords(t *testing.T) {
	c := NewClassifier(DefaultRuleset())
	doc := domain.Document{Filename: "agreement.pdf", MediaType: "application/pdf"}

	cls := c.Classify(doc, "")
	if cls.DocumentType != domain.DocumentContract || cls.SubType != "GENERAL" {
		t.Fatalf("expected CONTRACT/GENERAL, got %s/%q", cls.DocumentType, cls.SubType)
	}
}

func TestClassifyUnmatchedFallsBackToOther(t *testing.T) {
	c := NewClassifier(DefaultRuleset())
	doc := domain.Document{Filename: "scan_0042.png", MediaType: "image/png"}

	cls := c.Classify(doc, "lorem ipsum dolor sit amet")
	if cls.DocumentType != domain.DocumentOther {
		t.Fatalf("expected OTHER, got %s", cls.DocumentType)
	}
	if cls.Confidence != unmatchedConfidence {
		t.Fatalf("expected confidence %v, got %v", unmatchedConfidence, cls.Confidence)
	}
	if cls.Language != "en" || cls.IsJurisdictionLanguage {
		t.Fatalf("expected fallback language, got %q native=%v", cls.Language, cls.IsJurisdictionLanguage)
	}
	if cls.SuggestedWorkflow != "manual-triage-workflow" {
		t.Fatalf("unexpected workflow %q", cls.SuggestedWorkflow)
	}
}

func TestClassifyKeywordsMatchWholeTokens(t *testing.T) {
	c := NewClassifier(DefaultRuleset())
	doc := domain.Document{Filename: "bonus-report.pdf", MediaType: "application/pdf"}

	cls := c.Classify(doc, "")
	if cls.DocumentType != domain.DocumentOther {
		t.Fatalf("substring %q must not match keyword bon, got %s", "bonus", cls.DocumentType)
	}
}

func TestLanguageDetectorThreshold(t *testing.T) {
	d := NewLanguageDetector(DefaultRuleset().Jurisdiction)

	if lang, native := d.Detect("factura"); native || lang != "en" {
		t.Fatalf("single marker must not reach threshold, got %q %v", lang, native)
	}
	if lang, native := d.Detect("Factură fiscală", "Total de plată"); !native || lang != "ro" {
		t.Fatalf("expected ro, got %q %v", lang, native)
	}
}
