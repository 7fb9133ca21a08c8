package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const (
	SummarySheet = "Rezultate"
	FieldsSheet  = "Campuri"
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	summaryHeaders = []string{"Document", "Fișier", "Tip", "Status", "Încredere", "Revizuire", "Total", "Monedă", "Motive"}
	fieldHeaders   = []string{"Document", "Câmp", "Denumire", "Valoare", "Încredere", "Validare"}
)

// BatchXLSX renders a batch job as a workbook with one summary row per
// document and one row per extracted field. Rows follow the job's document order.
func BatchXLSX(job domain.BatchJob, filenames map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(FieldsSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	writeRow(f, SummarySheet, 1, toAny(summaryHeaders))
	writeRow(f, FieldsSheet, 1, toAny(fieldHeaders))

	summaryRow, fieldRow := 2, 2
	for _, id := range orderedIDs(job) {
		result, ok := job.Results[id]
		if !ok {
			writeRow(f, SummarySheet, summaryRow, []any{id, filenames[id], "", "PENDING"})
			summaryRow++
			continue
		}
		total, currency := totalOf(result)
		writeRow(f, SummarySheet, summaryRow, []any{
			id,
			filenames[id],
			string(result.Classification.DocumentType),
			string(result.Status),
			round2(result.OverallConfidence),
			yesNo(result.NeedsManualReview),
			total,
			currency,
			strings.Join(result.ReviewReasons, "; "),
		})
		summaryRow++

		for _, field := range result.Fields {
			writeRow(f, FieldsSheet, fieldRow, []any{
				id,
				field.Name,
				field.DisplayName,
				field.Value,
				round2(field.Confidence),
				string(field.ValidationStatus),
			})
			fieldRow++
		}
	}

	_ = f.SetColWidth(SummarySheet, "A", "A", 38)
	_ = f.SetColWidth(SummarySheet, "B", "B", 28)
	_ = f.SetColWidth(SummarySheet, "I", "I", 60)
	_ = f.SetColWidth(FieldsSheet, "A", "A", 38)
	_ = f.SetColWidth(FieldsSheet, "B", "D", 24)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

// orderedIDs lists the job's documents first, then any stray results.
func orderedIDs(job domain.BatchJob) []string {
	seen := make(map[string]struct{}, len(job.DocumentIDs))
	ids := make([]string, 0, len(job.DocumentIDs))
	for _, id := range job.DocumentIDs {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	var extra []string
	for id := range job.Results {
		if _, ok := seen[id]; !ok {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(ids, extra...)
}

func totalOf(result domain.AnalysisResult) (any, string) {
	s := result.Structured
	switch {
	case s.Invoice != nil && s.Invoice.TotalAmount != nil:
		return *s.Invoice.TotalAmount, s.Invoice.Currency
	case s.Receipt != nil && s.Receipt.TotalAmount != nil:
		return *s.Receipt.TotalAmount, s.Receipt.Currency
	case s.Contract != nil && s.Contract.Value != nil:
		return *s.Contract.Value, s.Contract.Currency
	}
	return "", ""
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func yesNo(v bool) string {
	if v {
		return "da"
	}
	return "nu"
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
