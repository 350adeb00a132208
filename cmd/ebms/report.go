package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nciocpl/ebms/internal/mesh"
	"github.com/nciocpl/ebms/internal/report"
	"github.com/nciocpl/ebms/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	GroupID: "maint",
	Short:   "Ad hoc spreadsheet reports",
}

var reportExclusionCmd = &cobra.Command{
	Use:   "exclusion-reasons",
	Short: "Count how often each exclusion reason was given, per board",
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("output")

		db := openStore()
		defer db.Close()

		ctx, cancel := signalContext()
		defer cancel()

		table, err := report.ExclusionReasons(ctx, db, out)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %d reasons across %d boards written to %s\n",
			ui.RenderPass("✓"), len(table.Rows), len(table.Boards), out)
	},
}

var reportAcceptanceCmd = &cobra.Command{
	Use:   "acceptance-rates",
	Short: "Per journal acceptance counts for each board, split by the board's not list",
	Long: `Writes not_listed.xlsx and not_not_listed.xlsx with one sheet per board.

--save-cache keeps the data that was read so the workbooks can be rebuilt
later with --from-cache, without touching the database.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("output-dir")
		fromCache, _ := cmd.Flags().GetString("from-cache")
		saveCache, _ := cmd.Flags().GetString("save-cache")
		if fromCache != "" && saveCache != "" {
			fatalf("--from-cache and --save-cache cannot be combined")
		}

		var boards []report.BoardAcceptance
		var err error
		if fromCache != "" {
			data, lerr := report.LoadAcceptanceData(fromCache)
			if lerr != nil {
				fatalf("%v", lerr)
			}
			boards, err = report.WriteAcceptanceRates(data, dir)
		} else {
			db := openStore()
			defer db.Close()

			ctx, cancel := signalContext()
			defer cancel()
			boards, err = report.AcceptanceRates(ctx, db, dir, saveCache)
		}
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %d boards written to %s and %s\n", ui.RenderPass("✓"), len(boards),
			filepath.Join(dir, report.NotListedWorkbook), filepath.Join(dir, report.OtherWorkbook))
	},
}

var reportRelatedCmd = &cobra.Command{
	Use:   "related-citations",
	Short: "List the comments, errata and other related citations of recently imported articles",
	Run: func(cmd *cobra.Command, args []string) {
		since, _ := cmd.Flags().GetString("since")
		out, _ := cmd.Flags().GetString("output")
		if _, err := time.Parse(time.DateOnly, since); err != nil {
			fatalf("invalid --since %q: want YYYY-MM-DD", since)
		}

		db := openStore()
		defer db.Close()

		ctx, cancel := signalContext()
		defer cancel()

		rows, err := report.RelatedCitations(ctx, db, since, out, nil)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %d related citations written to %s\n", ui.RenderPass("✓"), len(rows), out)
	},
}

var reportPubtypesCmd = &cobra.Command{
	Use:   "pubtype-ancestors",
	Short: "Derive publication type ancestry from a MeSH descriptor file",
	Long: `Reads a gzipped MeSH descriptor file (desc<year>.gz from NLM) and writes
a JSON map from each publication type to the types above it, for the
pubtype-ancestors config value.`,
	Run: func(cmd *cobra.Command, args []string) {
		in, _ := cmd.Flags().GetString("descriptors")
		out, _ := cmd.Flags().GetString("output")

		ancestors, err := mesh.ParseFile(in)
		if err != nil {
			fatalf("%v", err)
		}
		if err := ancestors.Save(out); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %d publication types written to %s\n", ui.RenderPass("✓"), len(ancestors), out)
	},
}

func init() {
	reportExclusionCmd.Flags().StringP("output", "o", "exclusion-reasons.xlsx", "Spreadsheet to write")
	reportCmd.AddCommand(reportExclusionCmd)

	reportAcceptanceCmd.Flags().StringP("output-dir", "o", ".", "Directory for the two workbooks")
	reportAcceptanceCmd.Flags().String("from-cache", "", "Build the workbooks from a saved data file instead of the database")
	reportAcceptanceCmd.Flags().String("save-cache", "", "Also save the data read from the database to this file")
	reportCmd.AddCommand(reportAcceptanceCmd)

	reportRelatedCmd.Flags().String("since", "2020-01-01", "Only articles imported on or after this date")
	reportRelatedCmd.Flags().StringP("output", "o", "related-citations.xlsx", "Spreadsheet to write")
	reportCmd.AddCommand(reportRelatedCmd)

	reportPubtypesCmd.Flags().StringP("descriptors", "d", "", "MeSH descriptor file, e.g. desc2024.gz")
	reportPubtypesCmd.Flags().StringP("output", "o", "pubtype-ancestors.json", "JSON file to write")
	_ = reportPubtypesCmd.MarkFlagRequired("descriptors")
	reportCmd.AddCommand(reportPubtypesCmd)
	rootCmd.AddCommand(reportCmd)
}
