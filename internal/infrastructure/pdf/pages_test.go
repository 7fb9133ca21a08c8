package pdf

import "testing"

func TestCountPagesRejectsGarbage(t *testing.T) {
	c := NewPageCounter()
	if _, err := c.CountPages(nil); err == nil {
		t.Fatalf("expected error for empty body")
	}
	if _, err := c.CountPages([]byte("not a pdf at all")); err == nil {
		t.Fatalf("expected error for non-pdf body")
	}
}
