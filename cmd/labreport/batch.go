package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/lab-report-parser/internal/async"
	"github.com/joseph-ayodele/lab-report-parser/internal/export"
	"github.com/joseph-ayodele/lab-report-parser/internal/ingest"
	"github.com/joseph-ayodele/lab-report-parser/internal/pipeline"
)

var (
	batchDir string
	batchOut string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process every report in a directory and export an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchDir == "" {
			return fmt.Errorf("--dir is required")
		}
		if batchOut == "" {
			batchOut = filepath.Join(filepath.Dir(filepath.Clean(batchDir)), "lab-reports.xlsx")
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		ocrStage, parseStage, err := a.stages()
		if err != nil {
			return err
		}
		processor := pipeline.NewProcessor(a.logger, ocrStage, parseStage, a.reports)
		queue := async.NewProcessorQueue(processor, a.logger,
			async.WithWorkers(a.cfg.Batch.Workers),
			async.WithQueueSize(a.cfg.Batch.QueueSize),
			async.WithProcessTimeout(a.cfg.Batch.Timeout),
		)
		defer queue.Shutdown(ctx)

		res, err := ingest.NewBatchRunner(queue, a.logger).Run(ctx, batchDir)
		if err != nil {
			return err
		}

		data, err := export.NewService(a.reports, a.logger).ExportReportsXLSX(res.Reports)
		if err != nil {
			return err
		}
		if err := os.WriteFile(batchOut, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", batchOut, err)
		}

		a.logger.Info("batch.exported",
			"batch_id", res.BatchID,
			"status", string(res.Status),
			"out", batchOut,
			"bytes", len(data),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "batch %s: %s, %d/%d processed, %d failed, %s -> %s\n",
			res.BatchID, res.Status, res.Processed, res.Total, res.Failed, res.Duration.Round(time.Millisecond), batchOut)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory of report files (required)")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "output XLSX path (default: lab-reports.xlsx next to --dir)")
}
