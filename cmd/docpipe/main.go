package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/kirillkom/docflow/internal/bootstrap"
	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/export"
	"github.com/kirillkom/docflow/internal/observability/logging"
)

const serviceName = "docpipe"

type summaryLine struct {
	DocumentID   string                `json:"document_id"`
	Filename     string                `json:"filename"`
	DocumentType domain.DocumentType   `json:"document_type,omitempty"`
	Status       domain.AnalysisStatus `json:"status,omitempty"`
	Confidence   float64               `json:"overall_confidence"`
	NeedsReview  bool                  `json:"needs_manual_review"`
	Actions      int                   `json:"actions"`
}

type summary struct {
	BatchID   string             `json:"batch_id"`
	Status    domain.BatchStatus `json:"status"`
	Progress  int                `json:"progress"`
	Skipped   []string           `json:"skipped,omitempty"`
	Documents []summaryLine      `json:"documents"`
}

func main() {
	fs := ff.NewFlagSet(serviceName)
	var (
		dir        = fs.StringLong("dir", ".", "Directory with documents to analyze")
		dbPath     = fs.StringLong("db", "docpipe.db", "Bolt database file path")
		storage    = fs.StringLong("storage", "./docpipe-storage", "Storage directory for uploaded bytes")
		out        = fs.StringLong("out", "", "Write the batch report to this .xlsx file (optional)")
		workers    = fs.IntLong("workers", 4, "Concurrent analyses")
		rulesetArg = fs.StringLong("ruleset", "", "YAML ruleset overriding the built-in Romanian rules")
		recognizer = fs.StringLong("recognizer", "pdftext", "Recognizer backend: 'pdftext' or 'synthetic'")
		logLevel   = fs.StringLong("log-level", "warn", "Log level: debug, info, warn, error")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("DOCPIPE")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(os.Stderr, serviceName, *logLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	cfg.StoreBackend = config.StoreBolt
	cfg.BoltPath = *dbPath
	cfg.EventsBackend = config.EventsLog
	cfg.StoragePath = *storage
	cfg.BatchWorkers = *workers
	cfg.RulesetPath = *rulesetArg
	cfg.RecognizerBackend = strings.ToLower(*recognizer)

	app, err := bootstrap.New(ctx, cfg, serviceName, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := run(ctx, app, *dir, *out); err != nil {
		logger.Error("docpipe_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *bootstrap.App, dir, out string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	var (
		ids       []string
		filenames = make(map[string]string)
		skipped   []string
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		doc, err := uploadFile(ctx, app, filepath.Join(dir, entry.Name()))
		if err != nil {
			if errors.Is(err, domain.ErrUnsupportedMediaType) || errors.Is(err, domain.ErrPayloadTooLarge) {
				app.Logger.Warn("document_skipped", "filename", entry.Name(), "error", err)
				skipped = append(skipped, entry.Name())
				continue
			}
			return err
		}
		ids = append(ids, doc.ID)
		filenames[doc.ID] = doc.Filename
	}
	if len(ids) == 0 {
		return fmt.Errorf("no supported documents in %s", dir)
	}

	job, err := app.BatchUC.CreateBatchJob(ctx, ids)
	if err != nil {
		return fmt.Errorf("create batch job: %w", err)
	}
	job, err = app.BatchUC.ProcessBatchJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("process batch job: %w", err)
	}

	if out != "" {
		data, err := export.BatchXLSX(job, filenames)
		if err != nil {
			return fmt.Errorf("export batch: %w", err)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summarize(job, filenames, skipped))
}

func uploadFile(ctx context.Context, app *bootstrap.App, path string) (domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.Document{}, fmt.Errorf("stat %s: %w", path, err)
	}
	name := filepath.Base(path)
	return app.UploadUC.Upload(ctx, ports.UploadRequest{
		Filename:  name,
		MediaType: mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
		SizeBytes: info.Size(),
		OwnerID:   serviceName,
		Body:      f,
	})
}

func summarize(job domain.BatchJob, filenames map[string]string, skipped []string) summary {
	s := summary{
		BatchID:  job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Skipped:  skipped,
	}
	for _, id := range job.DocumentIDs {
		line := summaryLine{DocumentID: id, Filename: filenames[id]}
		if result, ok := job.Results[id]; ok {
			line.DocumentType = result.Classification.DocumentType
			line.Status = result.Status
			line.Confidence = result.OverallConfidence
			line.NeedsReview = result.NeedsManualReview
			line.Actions = len(result.SuggestedActions)
		}
		s.Documents = append(s.Documents, line)
	}
	sort.SliceStable(s.Documents, func(i, j int) bool {
		return s.Documents[i].Filename < s.Documents[j].Filename
	})
	return s
}
