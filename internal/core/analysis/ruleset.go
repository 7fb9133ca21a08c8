package analysis

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type Jurisdiction struct {
	Country               string                `yaml:"country"`
	Language              string                `yaml:"language"`
	FallbackLanguage      string                `yaml:"fallback_language"`
	Currency              string                `yaml:"currency"`
	SubmissionChannel     string                `yaml:"submission_channel"`
	SubmissionChannelName string                `yaml:"submission_channel_name"`
	Markers               []string              `yaml:"markers"`
	MarkerThreshold       int                   `yaml:"marker_threshold"`
	RelevantTypes         []domain.DocumentType `yaml:"relevant_types"`
}

// TypeRule is one entry of the ordered classification list.
type TypeRule struct {
	Type       domain.DocumentType `yaml:"type"`
	Keywords   []string            `yaml:"keywords"`
	MediaTypes []string            `yaml:"media_types"`
	Workflow   string              `yaml:"workflow"`
}

type SubTypeRule struct {
	SubType  string   `yaml:"sub_type"`
	Keywords []string `yaml:"keywords"`
}

type Thresholds struct {
	HighOCRConfidence    float64 `yaml:"high_ocr_confidence"`
	FieldReview          float64 `yaml:"field_review"`
	OverallReview        float64 `yaml:"overall_review"`
	ClassificationReview float64 `yaml:"classification_review"`
	LargeAmount          float64 `yaml:"large_amount"`
}

type Weights struct {
	Classification float64 `yaml:"classification"`
	OCR            float64 `yaml:"ocr"`
	Fields         float64 `yaml:"fields"`
}

// Ruleset is the tunable knowledge the pipeline runs on. Types are evaluated in order.
type Ruleset struct {
	Version          string        `yaml:"version"`
	Jurisdiction     Jurisdiction  `yaml:"jurisdiction"`
	Types            []TypeRule    `yaml:"types"`
	ContractSubTypes []SubTypeRule `yaml:"contract_sub_types"`
	OtherWorkflow    string        `yaml:"other_workflow"`
	Thresholds       Thresholds    `yaml:"thresholds"`
	Weights          Weights       `yaml:"weights"`
}

func DefaultRuleset() Ruleset {
	return Ruleset{
		Version: "ro-2024.2",
		Jurisdiction: Jurisdiction{
			Country:               "RO",
			Language:              "ro",
			FallbackLanguage:      "en",
			Currency:              "RON",
			SubmissionChannel:     "ANAF_EFACTURA",
			SubmissionChannelName: "ANAF e-Factura",
			Markers: []string{
				"factura", "fiscala", "fiscal", "plata", "cumparator", "furnizor", "tva", "lei",
				"bon", "chitanta", "angajat", "angajator", "salariu", "scadenta", "suma", "numar",
				"cif", "cui", "semnat", "perioada", "contractul", "prestator", "beneficiar",
				"munca", "luna", "judet", "strada", "brut",
			},
			MarkerThreshold: 2,
			RelevantTypes:   []domain.DocumentType{domain.DocumentInvoice, domain.DocumentReceipt},
		},
		Types: []TypeRule{
			{
				Type:       domain.DocumentInvoice,
				Keywords:   []string{"factura", "facturii", "factura fiscala", "invoice"},
				MediaTypes: []string{"application/pdf", "image/"},
				Workflow:   "invoice-approval-workflow",
			},
			{
				Type:       domain.DocumentReceipt,
				Keywords:   []string{"bon fiscal", "bon", "bonul", "chitanta", "receipt"},
				MediaTypes: []string{"image/"},
				Workflow:   "expense-reimbursement-workflow",
			},
			{
				Type:       domain.DocumentContract,
				Keywords:   []string{"contract", "contractul", "contract de munca", "agreement"},
				MediaTypes: []string{"application/pdf"},
				Workflow:   "contract-review-workflow",
			},
			{
				Type:       domain.DocumentPayslip,
				Keywords:   []string{"fluturas", "fluturas salariu", "stat de plata", "payslip", "payroll", "salary"},
				MediaTypes: []string{"application/pdf"},
				Workflow:   "payroll-verification-workflow",
			},
		},
		ContractSubTypes: []SubTypeRule{
			{SubType: "EMPLOYMENT", Keywords: []string{"contract de munca", "munca", "angajat", "angajator", "employment", "cim"}},
			{SubType: "LEASE", Keywords: []string{"inchiriere", "locatiune", "chirie", "lease"}},
			{SubType: "SERVICES", Keywords: []string{"prestari servicii", "prestator", "servicii", "services"}},
		},
		OtherWorkflow: "manual-triage-workflow",
		Thresholds: Thresholds{
			HighOCRConfidence:    0.8,
			FieldReview:          0.7,
			OverallReview:        0.75,
			ClassificationReview: 0.5,
			LargeAmount:          10000,
		},
		Weights: Weights{
			Classification: 0.25,
			OCR:            0.35,
			Fields:         0.40,
		},
	}
}

// LoadRuleset overlays a YAML file on the defaults. An empty path yields the defaults.
func LoadRuleset(path string) (Ruleset, error) {
	rs := DefaultRuleset()
	if strings.TrimSpace(path) == "" {
		return rs, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Ruleset{}, fmt.Errorf("read ruleset: %w", err)
	}
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return Ruleset{}, fmt.Errorf("parse ruleset: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return Ruleset{}, fmt.Errorf("validate ruleset %s: %w", path, err)
	}
	return rs, nil
}

func (rs Ruleset) Validate() error {
	if rs.Version == "" {
		return fmt.Errorf("version is required")
	}
	if rs.Jurisdiction.Currency == "" || rs.Jurisdiction.Language == "" {
		return fmt.Errorf("jurisdiction currency and language are required")
	}
	if rs.Jurisdiction.SubmissionChannel == "" {
		return fmt.Errorf("jurisdiction submission_channel is required")
	}
	if rs.Jurisdiction.MarkerThreshold <= 0 {
		return fmt.Errorf("marker_threshold must be positive")
	}
	if len(rs.Types) == 0 {
		return fmt.Errorf("at least one type rule is required")
	}
	for i, rule := range rs.Types {
		if rule.Type == "" || rule.Type == domain.DocumentOther {
			return fmt.Errorf("types[%d]: type must be a concrete document type", i)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("types[%d]: keywords are required", i)
		}
	}
	w := rs.Weights
	if w.Classification < 0 || w.OCR < 0 || w.Fields < 0 || w.Classification+w.OCR+w.Fields <= 0 {
		return fmt.Errorf("weights must be non-negative with a positive sum")
	}
	return nil
}

func (rs Ruleset) isRelevant(t domain.DocumentType) bool {
	for _, rt := range rs.Jurisdiction.RelevantTypes {
		if rt == t {
			return true
		}
	}
	return false
}

func (rs Ruleset) workflowFor(t domain.DocumentType) string {
	for _, rule := range rs.Types {
		if rule.Type == t && rule.Workflow != "" {
			return rule.Workflow
		}
	}
	return rs.OtherWorkflow
}
