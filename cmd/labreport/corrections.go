package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/lab-report-parser/constants"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
)

var (
	correctionType  string
	listType        string
	correctionLimit int
)

var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "Manage learned OCR corrections",
}

var learnCmd = &cobra.Command{
	Use:   "learn <original> <corrected>",
	Short: "Learn one correction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := parseCorrectionType(correctionType)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		learned, err := a.store.Learn(cmd.Context(), args[0], args[1], typ)
		if err != nil {
			return err
		}
		if !learned {
			fmt.Fprintln(cmd.OutOrStdout(), "unchanged: original and corrected are equal")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "learned %q -> %q (%s)\n", args[0], args[1], typ)
		return nil
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <text>",
	Short: "Print the best learned correction for text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := parseCorrectionType(correctionType)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		got, found, err := a.store.BestCorrection(cmd.Context(), args[0], typ)
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(cmd.OutOrStdout(), "no correction")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), got)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned corrections, most frequent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var typ constants.CorrectionType
		if listType != "" {
			t, err := parseCorrectionType(listType)
			if err != nil {
				return err
			}
			typ = t
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		all, err := a.corrections.List(cmd.Context(), typ, correctionLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tORIGINAL\tCORRECTED\tFREQ\tCONFIDENCE")
		for _, c := range all {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", c.CorrectionType, c.OriginalText, c.CorrectedText, c.Frequency, c.ConfidenceScore)
		}
		return tw.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{learnCmd, lookupCmd} {
		c.Flags().StringVarP(&correctionType, "type", "t", string(constants.CorrectionTestName),
			"correction type: test_name, value or patient_info")
	}
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "only list this correction type")
	listCmd.Flags().IntVar(&correctionLimit, "limit", 50, "maximum rows (0 for all)")

	correctionsCmd.AddCommand(learnCmd, lookupCmd, listCmd)
}

func parseCorrectionType(s string) (constants.CorrectionType, error) {
	typ, ok := constants.CanonicalizeCorrectionType(s)
	if !ok {
		return "", common.NewAppError("INVALID_TYPE", fmt.Sprintf("unknown correction type %q", s), common.ErrInvalidInput)
	}
	return typ, nil
}
