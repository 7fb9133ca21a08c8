package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// InsightGenerator derives Romanian observations and follow-up actions from
// a scored analysis.
type InsightGenerator struct {
	ruleset Ruleset
	now     func() time.Time
}

func NewInsightGenerator(rs Ruleset, now func() time.Time) *InsightGenerator {
	if now == nil {
		now = time.Now
	}
	return &InsightGenerator{ruleset: rs, now: now}
}

func (g *InsightGenerator) Generate(result domain.AnalysisResult) ([]string, []domain.SuggestedAction) {
	return g.insights(result), g.actions(result)
}

func (g *InsightGenerator) insights(result domain.AnalysisResult) []string {
	out := make([]string, 0)
	th := g.ruleset.Thresholds
	cls := result.Classification

	if result.Status == domain.AnalysisFailed {
		return append(out, "Nu a putut fi extras text din document; este necesară o scanare nouă.")
	}
	if result.OCR.Confidence < th.HighOCRConfidence {
		out = append(out, fmt.Sprintf("Încredere OCR scăzută (%.0f%%); verificați calitatea scanării.", result.OCR.Confidence*100))
	}
	if !cls.IsJurisdictionLanguage {
		out = append(out, fmt.Sprintf("Documentul pare redactat în altă limbă (%s).", cls.Language))
	}

	switch cls.DocumentType {
	case domain.DocumentInvoice:
		out = append(out, g.invoiceInsights(result)...)
	case domain.DocumentReceipt:
		if _, ok := result.Field("merchantTaxId"); !ok {
			out = append(out, "Lipsește CIF-ul comerciantului de pe bon.")
		}
	case domain.DocumentContract:
		if cls.SubType == "EMPLOYMENT" {
			out = append(out, "Contract de muncă: verificați înregistrarea în REVISAL.")
		}
	case domain.DocumentPayslip:
		if _, ok := result.Field("netSalary"); !ok {
			out = append(out, "Salariul net nu a fost identificat.")
		}
	}

	for _, name := range []string{"totalAmount", "contractValue", "grossSalary"} {
		if f, ok := result.Field(name); ok {
			if v, ok := parseAmount(f.Value); ok && v >= th.LargeAmount {
				out = append(out, fmt.Sprintf("Valoare ridicată (%s); se recomandă aprobare suplimentară.", formatAmount(v)))
			}
		}
	}
	return out
}

func (g *InsightGenerator) invoiceInsights(result domain.AnalysisResult) []string {
	var out []string
	due, ok := result.Field("dueDate")
	switch {
	case !ok:
		out = append(out, "Lipsește data scadenței.")
	case due.ValidationStatus != domain.ValidationInvalid:
		if d, ok := parseISODate(due.Value); ok && d.Before(g.now().Truncate(24*time.Hour)) {
			out = append(out, fmt.Sprintf("Factura este scadentă din %s.", d.Format("02.01.2006")))
		}
	}
	if _, ok := result.Field("supplierTaxId"); !ok {
		out = append(out, "Lipsește CIF-ul furnizorului.")
	}
	if inv := result.Structured.Invoice; inv != nil && len(inv.LineItems) == 0 {
		out = append(out, "Nu au fost identificate poziții pe factură.")
	}
	return out
}

func (g *InsightGenerator) actions(result domain.AnalysisResult) []domain.SuggestedAction {
	j := g.ruleset.Jurisdiction
	cls := result.Classification
	out := make([]domain.SuggestedAction, 0, 4)

	if result.Status == domain.AnalysisFailed {
		out = append(out, domain.SuggestedAction{
			Code:        "rescan-document",
			Description: "Rescanați documentul la o calitate mai bună.",
		})
	}
	if result.NeedsManualReview {
		out = append(out, domain.SuggestedAction{
			Code:        "manual-review",
			Description: "Verificați manual câmpurile marcate.",
		})
	}
	if cls.HasJurisdictionRelevance {
		action := domain.SuggestedAction{
			Code:        "submit-" + strings.ToLower(string(cls.DocumentType)),
			Description: fmt.Sprintf("Raportați documentul prin %s.", j.SubmissionChannelName),
			Channel:     j.SubmissionChannel,
		}
		if cls.DocumentType == domain.DocumentInvoice {
			action.Code = "submit-efactura"
			action.Description = fmt.Sprintf("Transmiteți factura în %s.", j.SubmissionChannelName)
			action.Automated = !result.NeedsManualReview
		}
		out = append(out, action)
	}
	if result.Status != domain.AnalysisFailed && cls.SuggestedWorkflow != "" {
		out = append(out, domain.SuggestedAction{
			Code:        "start-workflow",
			Description: fmt.Sprintf("Porniți fluxul %s.", cls.SuggestedWorkflow),
			Automated:   !result.NeedsManualReview,
		})
	}
	out = append(out, domain.SuggestedAction{
		Code:        "archive-document",
		Description: "Arhivați documentul.",
		Automated:   true,
	})
	return out
}
