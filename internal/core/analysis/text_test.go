package analysis

import (
	"reflect"
	"testing"
)

func TestFold(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Factură", "factura"},
		{"ÎNCHIRIERE", "inchiriere"},
		{"Brașov, Timișoara", "brasov, timisoara"},
		{"Braşov, Timişoara", "brasov, timisoara"},
		{"chitanță", "chitanta"},
		{"chitanţă", "chitanta"},
		{"Câmpina", "campina"},
		{"plain ascii 123", "plain ascii 123"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Fatalf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Factură nr. FCT-0012/2024 / Societatea Ștefan")
	want := []string{"factura", "nr", "fct", "0012", "2024", "societatea", "stefan"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenSetMatchesCedillaAndCommaSpellings(t *testing.T) {
	ts := newTokenSet("Contract de prestări servicii, încheiat astăzi la Timişoara")
	if hits := ts.matches([]string{"prestari servicii", "timișoara", "factura"}); len(hits) != 2 {
		t.Fatalf("matches() = %v, want two hits", hits)
	}
}
