package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadmap/internal/classify"
)

var classifyJSON bool

// classifiedURL is one line of classify output.
type classifiedURL struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Platform string `json:"platform,omitempty"`
	Label    string `json:"label"`
	Genuine  bool   `json:"genuine_website"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify URL...",
	Short: "Classify website URLs by platform",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := initClassifier()
		if err != nil {
			return err
		}
		return writeClassified(cmd.OutOrStdout(), classifyURLs(table, args), classifyJSON)
	},
}

func classifyURLs(table *classify.Table, urls []string) []classifiedURL {
	out := make([]classifiedURL, 0, len(urls))
	for _, u := range urls {
		c := table.Classify(u)
		out = append(out, classifiedURL{
			URL:      u,
			Kind:     string(c.Kind),
			Platform: c.Platform,
			Label:    c.Label(),
			Genuine:  classify.IsGenuineWebsite(c),
		})
	}
	return out
}

func writeClassified(w io.Writer, rows []classifiedURL, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tKIND\tLABEL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.URL, r.Kind, r.Label)
	}
	return tw.Flush()
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(classifyCmd)
}
