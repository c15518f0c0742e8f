package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appcompliance "github.com/Comfie/ignaCheckApi-sub000/internal/application/compliance"
	"github.com/Comfie/ignaCheckApi-sub000/internal/bootstrap"
	"github.com/Comfie/ignaCheckApi-sub000/internal/config"
	domain "github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
	"github.com/Comfie/ignaCheckApi-sub000/internal/infra/catalog"
	"github.com/Comfie/ignaCheckApi-sub000/internal/logging"
)

type analyzeFlags struct {
	request       string
	catalog       string
	documents     string
	project       string
	mandatoryOnly bool
	skipExisting  bool
}

// errBatchIncomplete makes the process exit non-zero after the result was printed.
var errBatchIncomplete = errors.New("batch did not complete")

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze every control of a framework and print the BatchResult as JSON",
		Example: `  ignacheck analyze --request batch.json
  ignacheck analyze --catalog iso27001.yaml --documents ./docs --project acme`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := loadBatchRequest(f)
			if err != nil {
				return err
			}
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			return runAnalyze(cmd, cfg, req)
		},
	}
	cmd.Flags().StringVar(&f.request, "request", "", "JSON file holding a full BatchRequest")
	cmd.Flags().StringVar(&f.catalog, "catalog", "", "YAML framework catalog")
	cmd.Flags().StringVar(&f.documents, "documents", "", "Directory of extracted documents (.json, .txt, .md)")
	cmd.Flags().StringVar(&f.project, "project", "local", "Project id used with --catalog")
	cmd.Flags().BoolVar(&f.mandatoryOnly, "mandatory-only", false, "Analyze mandatory controls only")
	cmd.Flags().BoolVar(&f.skipExisting, "skip-existing", false, "Skip controls that already have a stored finding")
	cmd.MarkFlagsMutuallyExclusive("request", "catalog")
	cmd.MarkFlagsOneRequired("request", "catalog")
	return cmd
}

func loadBatchRequest(f analyzeFlags) (domain.BatchRequest, error) {
	opts := domain.BatchOptions{SkipExistingFindings: f.skipExisting, MandatoryControlsOnly: f.mandatoryOnly}
	if f.request != "" {
		data, err := os.ReadFile(f.request)
		if err != nil {
			return domain.BatchRequest{}, err
		}
		var req domain.BatchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return domain.BatchRequest{}, fmt.Errorf("parse %s: %w", f.request, err)
		}
		req.Options.SkipExistingFindings = req.Options.SkipExistingFindings || opts.SkipExistingFindings
		req.Options.MandatoryControlsOnly = req.Options.MandatoryControlsOnly || opts.MandatoryControlsOnly
		return req, nil
	}

	fw, err := catalog.Load(f.catalog)
	if err != nil {
		return domain.BatchRequest{}, fmt.Errorf("load catalog: %w", err)
	}
	var docs []domain.DocumentExcerpt
	if f.documents != "" {
		if docs, err = catalog.LoadDocuments(f.documents); err != nil {
			return domain.BatchRequest{}, fmt.Errorf("load documents: %w", err)
		}
	}
	return fw.BatchRequest(f.project, docs, opts), nil
}

func runAnalyze(cmd *cobra.Command, cfg *config.Config, req domain.BatchRequest) error {
	logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, true)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Service.RunFramework(ctx, appcompliance.NewRunID(), req, progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	if err := writeResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	switch {
	case res.ErrorMessage != "":
		return fmt.Errorf("%w: %s", errBatchIncomplete, res.ErrorMessage)
	case res.Canceled:
		return fmt.Errorf("%w: canceled", errBatchIncomplete)
	}
	return nil
}

func progressPrinter(w io.Writer) func(domain.ProgressEvent) {
	return func(e domain.ProgressEvent) {
		fmt.Fprintf(w, "[%d/%d] %s  findings=%d  elapsed=%s  eta=%s\n",
			e.ControlsAnalyzed, e.TotalControls, e.CurrentControl, e.FindingsCreated,
			e.Elapsed.Round(time.Second), e.EstimatedRemaining.Round(time.Second))
	}
}

func writeResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
