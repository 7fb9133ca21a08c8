package analysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type fallbackMode int

const (
	fallbackNone fallbackMode = iota
	fallbackFirst
	fallbackSecond
	fallbackMax
)

const (
	labelledFactor   = 1.0
	positionalFactor = 0.7
)

// fieldSpec describes how one named field is located among the entities.
type fieldSpec struct {
	name      string
	display   string
	dataType  domain.FieldDataType
	entity    domain.EntityType
	labels    []string
	exclude   []string
	window    int
	pickLast  bool
	fallback  fallbackMode
	validator func(string) bool
}

var (
	invoiceFields = []fieldSpec{
		{name: "invoiceNumber", display: "Număr factură", dataType: domain.FieldText, entity: domain.EntityDocumentNumber,
			labels: []string{"factura", "invoice", "seria"}, fallback: fallbackFirst},
		{name: "issueDate", display: "Data emiterii", dataType: domain.FieldDate, entity: domain.EntityDate,
			labels: []string{"data emiterii", "data facturii", "emisa", "data"}, exclude: []string{"scadenta", "scadentei"}, fallback: fallbackFirst},
		{name: "dueDate", display: "Data scadenței", dataType: domain.FieldDate, entity: domain.EntityDate,
			labels: []string{"scadenta", "scadentei", "termen de plata", "due"}},
		{name: "supplierTaxId", display: "CIF furnizor", dataType: domain.FieldText, entity: domain.EntityTaxID,
			labels: []string{"furnizor", "vanzator", "emitent", "prestator"}, window: 2, fallback: fallbackFirst, validator: validCIF},
		{name: "customerTaxId", display: "CIF cumpărător", dataType: domain.FieldText, entity: domain.EntityTaxID,
			labels: []string{"cumparator", "client", "beneficiar"}, window: 2, fallback: fallbackSecond, validator: validCIF},
		{name: "totalAmount", display: "Total de plată", dataType: domain.FieldCurrency, entity: domain.EntityAmount,
			labels: []string{"total de plata", "total", "de plata"}, exclude: []string{"tva", "subtotal", "fara"}, pickLast: true, fallback: fallbackMax},
		{name: "vatAmount", display: "Valoare TVA", dataType: domain.FieldCurrency, entity: domain.EntityAmount,
			labels: []string{"tva", "vat"}, exclude: []string{"fara", "cota"}, pickLast: true},
		{name: "iban", display: "IBAN", dataType: domain.FieldText, entity: domain.EntityIBAN,
			labels: []string{"iban", "cont"}, fallback: fallbackFirst, validator: validIBAN},
	}

	receiptFields = []fieldSpec{
		{name: "merchantTaxId", display: "CIF comerciant", dataType: domain.FieldText, entity: domain.EntityTaxID,
			labels: []string{"cif", "cui", "cod fiscal"}, fallback: fallbackFirst, validator: validCIF},
		{name: "receiptDate", display: "Data bonului", dataType: domain.FieldDate, entity: domain.EntityDate,
			labels: []string{"data"}, fallback: fallbackFirst},
		{name: "totalAmount", display: "Total de plată", dataType: domain.FieldCurrency, entity: domain.EntityAmount,
			labels: []string{"total", "de plata"}, exclude: []string{"tva", "subtotal"}, pickLast: true, fallback: fallbackMax},
		{name: "vatAmount", display: "Valoare TVA", dataType: domain.FieldCurrency, entity: domain.EntityAmount,
			labels: []string{"tva", "total tva"}, exclude: []string{"cota"}, pickLast: true},
	}

	contractFields = []fieldSpec{
		{name: "contractNumber", display: "Număr contract", dataType: domain.FieldText, entity: domain.EntityDocumentNumber,
			labels: []string{"contract", "contractul"}, fallback: fallbackFirst},
		{name: "signDate", display: "Data semnării", dataType: domain.FieldDate, entity: domain.EntityDate,
			labels: []string{"incheiat", "semnat", "semnarii", "data"}, fallback: fallbackFirst},
		{name: "partyTaxId", display: "CIF parte contractantă", dataType: domain.FieldText, entity: domain.EntityTaxID,
			labels: []string{"cif", "cui", "cod fiscal"}, fallback: fallbackFirst, validator: validCIF},
		{name: "contractValue", display: "Valoare contract", dataType: domain.FieldCurrency, entity: domain.EntityAmount,
			labels: []string{"valoare", "valoarea", "pret", "salariu", "salariul"}},
	}

	payslipFields = []fieldSpec{
		{name: "payPeriod", display: "Perioada de plată", dataType: domain.FieldDate, entity: domain.EntityDate,
			labels: []string{"perioada", "luna", "data platii"}, fallback: fallbackFirst},
		{name: "employerTaxId", display: "CIF angajator", dataType: domain.FieldText, entity: domain.EntityTaxID,
			labels: []string{"angajator"}, window: 2, fallback: fallbackFirst, validator: validCIF},
		{name: "grossSalary", display: "Salariu brut", dataType: domain.FieldCurrency, entity: domain.EntityAmount,
			labels: []string{"brut", "salariu brut"}},
		{name: "netSalary", display: "Salariu net", dataType: domain.FieldCurrency, entity: domain.EntityAmount,
			labels: []string{"net", "rest de plata", "salariu net"}, pickLast: true},
	}

	otherFields = []fieldSpec{
		{name: "documentDate", display: "Data documentului", dataType: domain.FieldDate, entity: domain.EntityDate, fallback: fallbackFirst},
		{name: "referenceNumber", display: "Număr de referință", dataType: domain.FieldText, entity: domain.EntityDocumentNumber, fallback: fallbackFirst},
	}

	currencyField = fieldSpec{name: "currency", display: "Monedă", dataType: domain.FieldText}

	reCurrencyCode = regexp.MustCompile(`(?i)\b(RON|LEI|EUR|USD)\b|€`)
	reISOCurrency  = regexp.MustCompile(`^[A-Z]{3}$`)
)

// FieldExtractor maps entities onto named, typed fields for a document type.
type FieldExtractor struct {
	reviewThreshold float64
}

func NewFieldExtractor(rs Ruleset) *FieldExtractor {
	return &FieldExtractor{reviewThreshold: rs.Thresholds.FieldReview}
}

func specsFor(t domain.DocumentType) []fieldSpec {
	switch t {
	case domain.DocumentInvoice:
		return invoiceFields
	case domain.DocumentReceipt:
		return receiptFields
	case domain.DocumentContract:
		return contractFields
	case domain.DocumentPayslip:
		return payslipFields
	default:
		return otherFields
	}
}

// Extract never fails; fields that cannot be located are omitted.
func (fe *FieldExtractor) Extract(cls domain.Classification, ocr domain.OCRResult, entities []domain.ExtractedEntity) []domain.ExtractedField {
	fields := make([]domain.ExtractedField, 0)
	if strings.TrimSpace(ocr.Text) == "" {
		return fields
	}

	lines := indexLines(ocr.Text)
	ocrFactor := 0.6 + 0.4*ocr.Confidence
	ambiguous := make(map[string]bool)

	for _, spec := range specsFor(cls.DocumentType) {
		entity, factor, amb, ok := locate(spec, entities, lines)
		if !ok {
			continue
		}
		ambiguous[spec.name] = amb
		fields = append(fields, domain.ExtractedField{
			Name:        spec.name,
			DisplayName: spec.display,
			DataType:    spec.dataType,
			Value:       entity.Normalized,
			Confidence:  clampConfidence(entity.Confidence * factor * ocrFactor),
		})
	}

	if cls.DocumentType != domain.DocumentOther && hasCurrencyField(fields) {
		if code, ok := detectCurrency(ocr.Text); ok {
			fields = append(fields, domain.ExtractedField{
				Name:        currencyField.name,
				DisplayName: currencyField.display,
				DataType:    currencyField.dataType,
				Value:       code,
				Confidence:  clampConfidence(0.9 * ocrFactor),
			})
		}
	}

	fe.validate(fields, ambiguous)
	return withDisplayNames(fields)
}

func hasCurrencyField(fields []domain.ExtractedField) bool {
	for _, f := range fields {
		if f.DataType == domain.FieldCurrency {
			return true
		}
	}
	return false
}

func locate(spec fieldSpec, entities []domain.ExtractedEntity, lines []lineInfo) (domain.ExtractedEntity, float64, bool, bool) {
	var candidates, labelled []domain.ExtractedEntity
	for _, e := range entities {
		if e.Type != spec.entity {
			continue
		}
		candidates = append(candidates, e)
		if len(spec.labels) > 0 && labelledBy(spec, lines, lineAt(lines, e.Start)) {
			labelled = append(labelled, e)
		}
	}

	if len(labelled) > 0 {
		pick := labelled[0]
		if spec.pickLast {
			pick = labelled[len(labelled)-1]
		}
		return pick, labelledFactor, distinctValues(labelled) > 1, true
	}

	switch spec.fallback {
	case fallbackFirst:
		if len(candidates) > 0 {
			return candidates[0], positionalFactor, false, true
		}
	case fallbackSecond:
		if len(candidates) > 1 {
			return candidates[1], positionalFactor, false, true
		}
	case fallbackMax:
		if len(candidates) > 0 {
			best := candidates[0]
			bestValue, _ := parseAmount(best.Normalized)
			for _, c := range candidates[1:] {
				if v, _ := parseAmount(c.Normalized); v > bestValue {
					best, bestValue = c, v
				}
			}
			return best, positionalFactor, false, true
		}
	}
	return domain.ExtractedEntity{}, 0, false, false
}

func labelledBy(spec fieldSpec, lines []lineInfo, idx int) bool {
	if idx < 0 {
		return false
	}
	if len(lines[idx].tokens.matches(spec.exclude)) > 0 {
		return false
	}
	for i := idx; i >= 0 && i >= idx-spec.window; i-- {
		if len(lines[i].tokens.matches(spec.labels)) > 0 {
			return true
		}
	}
	return false
}

func distinctValues(entities []domain.ExtractedEntity) int {
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		seen[e.Normalized] = struct{}{}
	}
	return len(seen)
}

func detectCurrency(text string) (string, bool) {
	counts := make(map[string]int)
	for _, m := range reCurrencyCode.FindAllString(text, -1) {
		code := strings.ToUpper(m)
		switch code {
		case "LEI":
			code = "RON"
		case "€":
			code = "EUR"
		}
		counts[code]++
	}
	if len(counts) == 0 {
		return "", false
	}
	codes := make([]string, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool {
		if counts[codes[i]] != counts[codes[j]] {
			return counts[codes[i]] > counts[codes[j]]
		}
		return codes[i] < codes[j]
	})
	return codes[0], true
}

func (fe *FieldExtractor) validate(fields []domain.ExtractedField, ambiguous map[string]bool) {
	specs := make(map[string]fieldSpec)
	for _, group := range [][]fieldSpec{invoiceFields, receiptFields, contractFields, payslipFields, otherFields} {
		for _, s := range group {
			specs[s.name] = s
		}
	}

	for i := range fields {
		f := &fields[i]
		valid := checkFormat(f.DataType, f.Value)
		if f.Name == currencyField.name {
			valid = reISOCurrency.MatchString(f.Value)
		}
		if spec, ok := specs[f.Name]; ok && spec.validator != nil && valid {
			valid = spec.validator(f.Value)
		}

		switch {
		case !valid:
			f.ValidationStatus = domain.ValidationInvalid
		case f.Confidence < fe.reviewThreshold || ambiguous[f.Name]:
			f.ValidationStatus = domain.ValidationNeedsReview
		default:
			f.ValidationStatus = domain.ValidationValid
		}
	}

	crossCheck(fields)
}

func checkFormat(dataType domain.FieldDataType, value string) bool {
	switch dataType {
	case domain.FieldCurrency, domain.FieldNumber:
		v, ok := parseAmount(value)
		return ok && v >= 0 && v < 1e10
	case domain.FieldDate:
		_, ok := parseISODate(value)
		return ok
	case domain.FieldBoolean:
		return value == "true" || value == "false"
	default:
		return strings.TrimSpace(value) != ""
	}
}

// crossCheck invalidates fields that contradict their siblings.
func crossCheck(fields []domain.ExtractedField) {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.Name] = i
	}

	if di, ok := index["dueDate"]; ok {
		if ii, ok := index["issueDate"]; ok {
			due, okDue := parseISODate(fields[di].Value)
			issued, okIssued := parseISODate(fields[ii].Value)
			if okDue && okIssued && due.Before(issued) {
				fields[di].ValidationStatus = domain.ValidationInvalid
			}
		}
	}

	if vi, ok := index["vatAmount"]; ok {
		if ti, ok := index["totalAmount"]; ok {
			vat, okVat := parseAmount(fields[vi].Value)
			total, okTotal := parseAmount(fields[ti].Value)
			if okVat && okTotal && vat > total {
				fields[vi].ValidationStatus = domain.ValidationInvalid
			}
		}
	}

	if ni, ok := index["netSalary"]; ok {
		if gi, ok := index["grossSalary"]; ok {
			net, okNet := parseAmount(fields[ni].Value)
			gross, okGross := parseAmount(fields[gi].Value)
			if okNet && okGross && net > gross {
				fields[ni].ValidationStatus = domain.ValidationNeedsReview
			}
		}
	}
}

func withDisplayNames(fields []domain.ExtractedField) []domain.ExtractedField {
	out := fields[:0]
	for _, f := range fields {
		if strings.TrimSpace(f.DisplayName) == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

type lineInfo struct {
	start, end int
	tokens     tokenSet
}

func indexLines(text string) []lineInfo {
	var lines []lineInfo
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			lines = append(lines, lineInfo{start: start, end: i, tokens: newTokenSet(text[start:i])})
			start = i + 1
		}
	}
	return lines
}

func lineAt(lines []lineInfo, offset int) int {
	i := sort.Search(len(lines), func(i int) bool { return lines[i].end >= offset })
	if i == len(lines) {
		return -1
	}
	return i
}
