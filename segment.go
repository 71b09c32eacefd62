package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scriptboard/pkg/extract"
	"scriptboard/pkg/segment"
)

var (
	segmentJSON   bool
	segmentHTML   bool
	segmentFormat string
)

var segmentCmd = &cobra.Command{
	Use:   "segment [file]",
	Short: "Split a script file into numbered lines",
	Long: `Segment extracts the text of a script file (pdf, fdx or plain text) and
prints the lines readers would comment on. The format is taken from the file
extension unless --format is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}

		var format extract.Format
		if segmentFormat != "" {
			format, err = extract.ParseFormat(segmentFormat)
		} else {
			format, err = extract.FormatFromFilename(path, "")
		}
		if err != nil {
			return err
		}

		text, err := extract.Extract(data, format)
		if err != nil {
			return err
		}
		lines := segment.Segment(text)

		out := cmd.OutOrStdout()
		switch {
		case segmentJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(lines)
		case segmentHTML:
			_, err := fmt.Fprint(out, segment.Render(lines))
			return err
		default:
			for _, l := range lines {
				if _, err := fmt.Fprintf(out, "%4d  %s\n", l.Index, l.Text()); err != nil {
					return err
				}
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(segmentCmd)
	segmentCmd.Flags().BoolVar(&segmentJSON, "json", false, "print lines as JSON")
	segmentCmd.Flags().BoolVar(&segmentHTML, "html", false, "print reader markup")
	segmentCmd.Flags().StringVar(&segmentFormat, "format", "", "pdf, fdx or plain")
	segmentCmd.MarkFlagsMutuallyExclusive("json", "html")
}
