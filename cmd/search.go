package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/export"
	"github.com/sells-group/leadmap/internal/model"
	"github.com/sells-group/leadmap/internal/search"
)

var (
	searchQuery   string
	searchNorth   float64
	searchSouth   float64
	searchEast    float64
	searchWest    float64
	searchOut     string
	searchSink    string
	searchAccount string
	searchFilter  string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search a map rectangle and export the leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		account := searchAccount
		if account == "" {
			account = cfg.Credits.DefaultAccount
		}

		sess := env.Sessions.Create(account, searchQuery)
		res, err := env.Searcher.Run(ctx, sess.Store, search.Request{
			Account: account,
			Query:   searchQuery,
			Bounds: model.Bounds{
				North: searchNorth,
				South: searchSouth,
				East:  searchEast,
				West:  searchWest,
			},
			Filter: search.LeadFilter(searchFilter),
		})
		if err != nil {
			if search.IsCreditError(err) {
				return eris.Wrap(err, "search refused (buy a pack with `leadmap credits checkout`)")
			}
			return err
		}
		env.Sessions.Finish(sess.ID)
		printSearchResult(cmd.OutOrStdout(), res)

		if searchSink != "" {
			sink, err := env.Sink(searchSink)
			if err != nil {
				return err
			}
			n, err := env.Exporter.Deliver(ctx, sess.Store, sink)
			if errors.Is(err, export.ErrNothingToExport) {
				fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %d leads to %s\n", n, sink.Name())
			return nil
		}

		path, err := env.Exporter.ExportFile(ctx, sess.Store, resolveOut(searchOut))
		if errors.Is(err, export.ErrNothingToExport) {
			fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d leads to %s\n", sess.Store.Len(), path)
		return nil
	},
}

// resolveOut falls back to the configured export filename.
func resolveOut(flag string) string {
	if flag != "" {
		return flag
	}
	if cfg != nil && cfg.Export.Filename != "" {
		return cfg.Export.Filename
	}
	return export.DefaultFilename
}

func printSearchResult(w io.Writer, res *search.Result) {
	fmt.Fprintf(w, "%d leads from %d tiles (%d failed), %d API calls, $%.3f, %d credits left\n",
		res.Leads, res.Tiles, res.FailedTiles, res.APICalls, res.CostUSD, res.Remaining)
	for _, m := range res.Markers {
		fmt.Fprintf(w, "  %-40s %s\n", m.Lead.Name, m.Label)
	}
	zap.L().Debug("search result", zap.Int("markers", len(res.Markers)), zap.Int("skipped", res.Skipped))
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchQuery, "query", "", "what to search for, e.g. \"plumber\"")
	f.Float64Var(&searchNorth, "north", 0, "north edge latitude")
	f.Float64Var(&searchSouth, "south", 0, "south edge latitude")
	f.Float64Var(&searchEast, "east", 0, "east edge longitude")
	f.Float64Var(&searchWest, "west", 0, "west edge longitude")
	f.StringVar(&searchOut, "out", "", "export file, .csv or .xlsx (default from config)")
	f.StringVar(&searchSink, "sink", "", "deliver to notion or salesforce instead of a file")
	f.StringVar(&searchAccount, "account", "", "credit account (default from config)")
	f.StringVar(&searchFilter, "filter", "", "lead filter: all, no_genuine_website, no_website")
	_ = searchCmd.MarkFlagRequired("query")
	for _, name := range []string{"north", "south", "east", "west"} {
		_ = searchCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(searchCmd)
}
