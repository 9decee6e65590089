package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/lab-report-parser/internal/core/report"
	"github.com/joseph-ayodele/lab-report-parser/internal/entity"
)

var (
	parseFormat   string
	parseValidate bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse one report file and print the structured result",
	Long: `Parse extracts the text of a report file (.txt, document-AI .json, .pdf or
an image) and prints the structured report.

With --validate the file is instead read as a report JSON document, for
example a reviewer's corrected snapshot, and checked against the report schema.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if parseValidate {
			return validateReportFile(cmd.OutOrStdout(), args[0])
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
		res, err := ocrStage.Run(ctx, args[0])
		if err != nil {
			return err
		}
		rep, raw, err := parseStage.Run(ctx, res.Text)
		if err != nil {
			return err
		}

		switch parseFormat {
		case "json":
			var buf strings.Builder
			enc := json.NewEncoder(&buf)
			enc.SetIndent("", "  ")
			if err := enc.Encode(json.RawMessage(raw)); err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), buf.String())
			return err
		case "pretty":
			printPretty(cmd.OutOrStdout(), rep, res.Method, float64(res.Confidence))
			return nil
		default:
			return fmt.Errorf("unknown --format %q (want json or pretty)", parseFormat)
		}
	},
}

func init() {
	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", "json", "output format: json or pretty")
	parseCmd.Flags().BoolVar(&parseValidate, "validate", false, "check the file as report JSON against the schema")
}

func validateReportFile(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := report.ValidateJSON(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	_, err = fmt.Fprintf(w, "%s: valid\n", path)
	return err
}

func printPretty(w io.Writer, rep *entity.Report, method string, confidence float64) {
	p := rep.PatientInfo
	l := rep.LabInfo
	fmt.Fprintf(w, "Extraction: %s (confidence %.2f)\n\n", method, confidence)
	fmt.Fprintln(w, "Patient")
	printField(w, "Name", p.Name)
	printField(w, "Patient ID", p.PatientID)
	printField(w, "Age", p.Age)
	printField(w, "Gender", p.Gender)
	printField(w, "Phone", p.Phone)
	fmt.Fprintln(w, "\nLab")
	printField(w, "Lab ID", l.LabID)
	printField(w, "Requested by", l.RequestedBy)
	printField(w, "Requested", l.RequestedDate)
	printField(w, "Collected", l.CollectedDate)
	printField(w, "Analysed", l.AnalysisDate)
	printField(w, "Validated by", l.ValidatedBy)

	for _, cat := range rep.Categories() {
		fmt.Fprintf(w, "\n%s\n", strings.ToUpper(cat))
		for _, t := range rep.TestResults {
			if t.Category != cat {
				continue
			}
			flag := ""
			if t.Flag != nil {
				flag = " [" + *t.Flag + "]"
			}
			fmt.Fprintf(w, "  %-28s %-12s %-10s %s%s\n", t.TestName, t.Result, t.Unit, t.ReferenceRange, flag)
		}
	}
}

func printField(w io.Writer, label string, v *string) {
	val := entity.StrVal(v)
	if val == "" {
		val = "-"
	}
	fmt.Fprintf(w, "  %-14s %s\n", label+":", val)
}
