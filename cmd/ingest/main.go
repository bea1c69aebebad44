// Command ingest loads trace files into the annotation database and can
// clear annotation state between workshop sessions. It writes to the
// database directly; stop the server before running it.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mettafore/evals-workshop/internal/config"
	"github.com/mettafore/evals-workshop/internal/models"
	"github.com/mettafore/evals-workshop/internal/repository"

	"github.com/charmbracelet/huh"
	"go.uber.org/zap"
)

// traceFile is the on-disk shape of one generation run: the run metadata
// plus every email with its captured model outputs.
type traceFile struct {
	RunID          string       `json:"run_id"`
	PromptPath     string       `json:"prompt_path"`
	PromptChecksum string       `json:"prompt_checksum"`
	SourceCSV      string       `json:"source_csv"`
	ModelName      string       `json:"model_name"`
	GeneratedAt    time.Time    `json:"generated_at"`
	Emails         []traceEmail `json:"emails"`
}

type traceEmail struct {
	Hash        string            `json:"email_hash"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Metadata    map[string]string `json:"metadata"`
	Summary     string            `json:"summary"`
	Commitments []string          `json:"commitments"`
}

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to config file")
	tracePath := flag.String("file", "", "trace JSON file to ingest")
	clear := flag.Bool("clear", false, "clear all annotation data, preserving runs and labelers")
	yes := flag.Bool("yes", false, "skip the clear confirmation prompt")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		*configPath = ""
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755)

	store, err := repository.NewStore(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	switch {
	case *clear:
		if err := clearAnnotations(store, *yes); err != nil {
			logger.Fatal("Clear failed", zap.Error(err))
		}
	case *tracePath != "":
		if err := ingestTrace(store, *tracePath, logger); err != nil {
			logger.Fatal("Ingest failed", zap.Error(err))
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: ingest -file trace.json | ingest -clear")
		os.Exit(2)
	}
}

func ingestTrace(store *repository.Store, path string, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read trace file: %w", err)
	}

	var trace traceFile
	if err := json.Unmarshal(data, &trace); err != nil {
		return fmt.Errorf("failed to parse trace file: %w", err)
	}

	if trace.RunID == "" {
		base := filepath.Base(path)
		trace.RunID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if trace.GeneratedAt.IsZero() {
		trace.GeneratedAt = time.Now().UTC()
	}

	if err := store.UpsertRun(&models.TraceRun{
		RunID:          trace.RunID,
		PromptPath:     trace.PromptPath,
		PromptChecksum: trace.PromptChecksum,
		SourceCSV:      trace.SourceCSV,
		ModelName:      trace.ModelName,
		GeneratedAt:    trace.GeneratedAt,
	}); err != nil {
		return err
	}

	ingested := 0
	for i, e := range trace.Emails {
		hash := e.Hash
		if hash == "" {
			hash = contentHash(e.Subject, e.Body)
		}

		err := store.SaveEmail(&models.Email{
			Hash:        hash,
			Subject:     e.Subject,
			Body:        e.Body,
			Metadata:    e.Metadata,
			RunID:       trace.RunID,
			Summary:     e.Summary,
			Commitments: e.Commitments,
			IngestedAt:  trace.GeneratedAt.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			return fmt.Errorf("failed to save email %s: %w", hash, err)
		}
		ingested++
	}

	logger.Info("Trace ingested",
		zap.String("run_id", trace.RunID),
		zap.String("model", trace.ModelName),
		zap.Int("emails", ingested))

	return nil
}

// contentHash derives a stable email identity from subject and body.
func contentHash(subject, body string) string {
	sum := sha256.Sum256([]byte(subject + "\n" + body))
	return hex.EncodeToString(sum[:])[:16]
}

func clearAnnotations(store *repository.Store, skipConfirm bool) error {
	counts, err := store.CountAnnotationData()
	if err != nil {
		return err
	}

	fmt.Printf("About to delete: %d axial links, %d annotations, %d judgments, %d failure modes\n",
		counts.AxialLinks, counts.Annotations, counts.Judgments, counts.FailureModes)
	fmt.Printf("Preserved: %d trace runs, %d labelers\n", counts.TraceRuns, counts.Labelers)

	if !skipConfirm {
		var confirm bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title("Delete all annotation data?").
				Description("Trace runs and labelers are kept.").
				Value(&confirm),
		))
		if err := form.Run(); err != nil {
			return err
		}
		if !confirm {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := store.ClearAnnotationData(); err != nil {
		return err
	}

	fmt.Println("Annotation data cleared.")
	return nil
}
