package analysis

import (
	"math/big"
	"strconv"
	"strings"
	"time"
)

// parseAmount normalizes "1.234,56", "1,234.56", "1234,56" and "1234.56".
// The last separator followed by one or two digits is the decimal mark.
func parseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	decimalAt := -1
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		if tail := len(s) - i - 1; tail == 1 || tail == 2 {
			decimalAt = i
		}
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case i == decimalAt:
			b.WriteByte('.')
		case r == '.' || r == ',':
		default:
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

const isoDate = "2006-01-02"

func parseISODate(s string) (time.Time, bool) {
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return time.Time{}, false
	}
	if t.Year() < 1990 || t.Year() > 2100 {
		return time.Time{}, false
	}
	return t, true
}

// validCIF checks the Romanian fiscal code control digit (key 753217532).
func validCIF(id string) bool {
	digits := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(id)), "RO")
	if len(digits) < 2 || len(digits) > 10 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	const key = "753217532"
	body := strings.Repeat("0", 9-(len(digits)-1)) + digits[:len(digits)-1]
	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(body[i]-'0') * int(key[i]-'0')
	}
	control := sum * 10 % 11
	if control == 10 {
		control = 0
	}
	return control == int(digits[len(digits)-1]-'0')
}

// validIBAN runs the ISO 13616 mod-97 check.
func validIBAN(iban string) bool {
	s := strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	rearranged := s[4:] + s[:4]
	var b strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteString(strconv.Itoa(int(r-'A') + 10))
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(b.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}
