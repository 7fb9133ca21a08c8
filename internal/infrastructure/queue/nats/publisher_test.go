package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestSubject(t *testing.T) {
	if got := Subject("", domain.EventDocumentUploaded); got != "docflow.document.uploaded" {
		t.Fatalf("Subject() = %q", got)
	}
	if got := Subject("ro.prod", domain.EventDocumentAnalyzed); got != "ro.prod.document.analyzed" {
		t.Fatalf("Subject() = %q", got)
	}
}

func TestDecodeEvent(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"kind":"document.uploaded","document_id":"doc-1","filename":"factura.pdf"}`))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if event.Kind != domain.EventDocumentUploaded || event.DocumentID != "doc-1" {
		t.Fatalf("unexpected event: %+v", event)
	}

	for _, raw := range []string{`not json`, `{"kind":"document.uploaded"}`, `{"document_id":"x"}`} {
		if _, err := DecodeEvent([]byte(raw)); err == nil {
			t.Fatalf("DecodeEvent(%s) expected error", raw)
		}
	}
}

func TestClassifyNATSError(t *testing.T) {
	if v := classifyNATSError(context.Canceled); v.Retry || v.Trip {
		t.Fatalf("canceled verdict = %+v", v)
	}
	if v := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrNoServers)); !v.Retry || !v.Trip {
		t.Fatalf("no servers verdict = %+v", v)
	}
	if v := classifyNATSError(nats.ErrBadSubject); v.Retry || !v.Trip {
		t.Fatalf("bad subject verdict = %+v", v)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrTimeout); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("timeout should be temporary, got %v", err)
	}
	perm := errors.New("bad payload")
	if err := wrapTemporaryIfNeeded(perm); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("permanent error became temporary: %v", err)
	}
}
