package synthetic

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/analysis"
	"github.com/kirillkom/docflow/internal/core/domain"
)

const (
	EngineName = "synthetic"

	pdfConfidence      = 0.93
	imageConfidence    = 0.88
	degradedConfidence = 0.55
)

var degradedMarkers = []string{"blur", "blurry", "low", "poor", "damaged", "faded", "photo"}

type template int

const (
	templateGeneric template = iota
	templateInvoice
	templateReceipt
	templateEmployment
	templateServices
	templatePayslip
)

// templateHints is checked in order; the first hint found in the filename wins.
var templateHints = []struct {
	tmpl  template
	words []string
}{
	{templateInvoice, []string{"factura", "facturi", "invoice"}},
	{templateReceipt, []string{"bon", "chitanta", "receipt"}},
	{templateEmployment, []string{"munca", "cim", "angajare", "employment"}},
	{templateServices, []string{"contract", "agreement", "servicii"}},
	{templatePayslip, []string{"fluturas", "payslip", "salariu", "salary", "payroll"}},
}

var (
	companies = []struct{ name, cif string }{
		{"SC Alfa Consulting SRL", "18547290"},
		{"SC Beta Retail SRL", "31587640"},
		{"SC Gamma Market SRL", "14082930"},
		{"SC Delta Logistic SA", "24617209"},
		{"SC Epsilon Soft SRL", "43785020"},
		{"SC Zeta Construct SRL", "15900825"},
		{"SC Eta Distributie SRL", "32967450"},
	}
	ibans    = []string{"RO37BTRL0000000000000001", "RO34RNCB0082044123450001", "RO21INGB0000999901234567"}
	services = []string{"Servicii consultanta", "Licenta software", "Mentenanta lunara", "Transport marfa", "Instruire personal"}
	products = []string{"Paine alba", "Apa minerala", "Cafea boabe", "Hartie copiator", "Detergent"}
	people   = []string{"Ion Popescu", "Maria Ionescu", "Andrei Dumitrescu", "Elena Stan"}
	baseDate = time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
)

// Recognizer stands in for an OCR engine. Output is a pure function of the
// document, so repeated runs yield identical text.
type Recognizer struct{}

func New() *Recognizer {
	return &Recognizer{}
}

func (r *Recognizer) Recognize(ctx context.Context, doc domain.Document) (domain.OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.OCRResult{}, err
	}

	name := strings.TrimSuffix(doc.Filename, filepath.Ext(doc.Filename))
	tokens := filenameTokens(name)
	seed := newSeed(doc.ID + "|" + doc.Filename)

	lines := render(pickTemplate(tokens), seed)
	confidence := baseConfidence(doc, tokens)
	pages := splitPages(lines, doc.PageCount, confidence)

	return domain.OCRResult{
		Text:       strings.Join(lines, "\n"),
		Confidence: confidence,
		Engine:     EngineName,
		Pages:      pages,
	}, nil
}

func baseConfidence(doc domain.Document, tokens map[string]struct{}) float64 {
	for _, m := range degradedMarkers {
		if _, ok := tokens[m]; ok {
			return degradedConfidence
		}
	}
	if doc.IsPDF() {
		return pdfConfidence
	}
	return imageConfidence
}

func pickTemplate(tokens map[string]struct{}) template {
	for _, hint := range templateHints {
		for _, w := range hint.words {
			if _, ok := tokens[w]; ok {
				return hint.tmpl
			}
		}
	}
	return templateGeneric
}

func filenameTokens(name string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range analysis.Tokenize(name) {
		out[tok] = struct{}{}
	}
	return out
}

// splitPages spreads lines over pageCount pages in reading order. Pages left
// without text report the confidence floor.
func splitPages(lines []string, pageCount int, confidence float64) []domain.PageResult {
	if pageCount < 1 {
		pageCount = 1
	}
	pages := make([]domain.PageResult, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		from := i * len(lines) / pageCount
		to := (i + 1) * len(lines) / pageCount
		page := domain.PageResult{
			PageNumber: i + 1,
			Text:       strings.Join(lines[from:to], "\n"),
			Confidence: confidence,
		}
		if strings.TrimSpace(page.Text) == "" {
			page.Confidence = analysis.MinConfidence
		}
		pages = append(pages, page)
	}
	return pages
}

type seed struct {
	state uint64
}

func newSeed(key string) *seed {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return &seed{state: h.Sum64() | 1}
}

// next is a xorshift step; only determinism matters here.
func (s *seed) next(n int) int {
	s.state ^= s.state << 13
	s.state ^= s.state >> 7
	s.state ^= s.state << 17
	return int(s.state % uint64(n))
}

func render(t template, s *seed) []string {
	switch t {
	case templateInvoice:
		return invoiceLines(s)
	case templateReceipt:
		return receiptLines(s)
	case templateEmployment:
		return employmentLines(s)
	case templateServices:
		return servicesLines(s)
	case templatePayslip:
		return payslipLines(s)
	default:
		return genericLines(s)
	}
}

func invoiceLines(s *seed) []string {
	supplier := companies[s.next(len(companies))]
	customer := companies[(indexOf(supplier.name)+1+s.next(len(companies)-1))%len(companies)]
	issued := baseDate.AddDate(0, 0, s.next(300))

	lines := []string{
		"FACTURA FISCALA",
		fmt.Sprintf("Seria FCT nr. FCT-%05d", 1+s.next(99999)),
		"Data emiterii: " + roDate(issued),
		"Data scadentei: " + roDate(issued.AddDate(0, 0, 30)),
		"Furnizor: " + supplier.name,
		"CIF: RO" + supplier.cif,
		"Cumparator: " + customer.name,
		"CIF: RO" + customer.cif,
	}

	net := 0.0
	items := 1 + s.next(3)
	for i := 0; i < items; i++ {
		qty := 1 + s.next(5)
		price := float64(50 * (1 + s.next(40)))
		amount := float64(qty) * price
		net += amount
		lines = append(lines, fmt.Sprintf("%d. %s %d x %s = %s", i+1, services[s.next(len(services))], qty, roAmount(price), roAmount(amount)))
	}
	vat := cents(net * 0.19)
	lines = append(lines,
		"Total fara TVA: "+roAmount(net),
		"TVA 19%: "+roAmount(vat),
		"Total de plata: "+roAmount(net+vat)+" RON",
		"IBAN: "+ibans[s.next(len(ibans))],
	)
	return lines
}

func receiptLines(s *seed) []string {
	merchant := companies[s.next(len(companies))]
	qty := 1 + s.next(4)
	price := cents(float64(150+s.next(2000)) / 10)
	total := cents(float64(qty) * price)
	return []string{
		merchant.name,
		"CIF: RO" + merchant.cif,
		"BON FISCAL",
		"Data: " + roDate(baseDate.AddDate(0, 0, s.next(300))),
		fmt.Sprintf("%s %d x %s = %s", products[s.next(len(products))], qty, roAmount(price), roAmount(total)),
		"TOTAL: " + roAmount(total) + " LEI",
		"TVA 9%: " + roAmount(cents(total*9/109)),
	}
}

func employmentLines(s *seed) []string {
	employer := companies[s.next(len(companies))]
	return []string{
		fmt.Sprintf("Contractul individual de munca nr. %d incheiat la data de %s", 100+s.next(900), roDate(baseDate.AddDate(0, 0, s.next(300)))),
		"Angajator: " + employer.name,
		"CIF: RO" + employer.cif,
		"Angajat: " + people[s.next(len(people))],
		"Functia: specialist",
		"Salariul de baza lunar brut: " + roAmount(float64(3000+100*s.next(60))) + " lei",
	}
}

func servicesLines(s *seed) []string {
	provider := companies[s.next(len(companies))]
	return []string{
		fmt.Sprintf("Contract de prestari servicii nr. %d incheiat la data de %s", 10+s.next(90), roDate(baseDate.AddDate(0, 0, s.next(300)))),
		"Prestator: " + provider.name,
		"CIF: RO" + provider.cif,
		"Obiectul: " + services[s.next(len(services))],
		"Valoarea contractului: " + roAmount(float64(1000*(1+s.next(20)))) + " RON",
	}
}

func payslipLines(s *seed) []string {
	employer := companies[s.next(len(companies))]
	gross := float64(3000 + 100*s.next(60))
	cas, cass := cents(gross*0.25), cents(gross*0.10)
	tax := cents((gross - cas - cass) * 0.10)
	return []string{
		"FLUTURAS SALARIU",
		"Data platii: " + roDate(baseDate.AddDate(0, 0, s.next(300))),
		"Angajator: " + employer.name,
		"CIF: RO" + employer.cif,
		"Angajat: " + people[s.next(len(people))],
		"Salariu brut: " + roAmount(gross) + " lei",
		"CAS 25%: " + roAmount(cas),
		"CASS 10%: " + roAmount(cass),
		"Impozit 10%: " + roAmount(tax),
		"Salariu net: " + roAmount(gross-cas-cass-tax) + " lei",
	}
}

func genericLines(s *seed) []string {
	return []string{
		fmt.Sprintf("Adresa nr. %d", 1000+s.next(9000)),
		"Data: " + roDate(baseDate.AddDate(0, 0, s.next(300))),
		"Subiect: notificare",
		"Va transmitem alaturat documentele solicitate.",
	}
}

func indexOf(name string) int {
	for i, c := range companies {
		if c.name == name {
			return i
		}
	}
	return 0
}

func roDate(t time.Time) string {
	return t.Format("02.01.2006")
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}

// roAmount formats 1234.5 as "1.234,50".
func roAmount(v float64) string {
	raw := strconv.FormatFloat(cents(v), 'f', 2, 64)
	whole, frac, _ := strings.Cut(raw, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String() + "," + frac
}
