package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/nciocpl/ebms/internal/export"
	"github.com/nciocpl/ebms/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "snapshot",
	Short:   "Write the exported snapshot from the database",
	Long: `Write one <type>.json file per entity type listed under [export.tables]
in the configuration, one JSON object per line. An existing exported
snapshot is renamed aside first.`,
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = cfg.Path(cfg.Paths.Exported)
		}

		db := openStore()
		defer db.Close()
		logger := newLogger("export")
		defer logger.Close()

		ctx, cancel := signalContext()
		defer cancel()

		res, err := export.Export(ctx, db, export.Options{
			Dir:    out,
			Tables: cfg.Export.Tables,
			Logger: logger.Logger,
		})
		if err != nil {
			fatalf("%v", err)
		}

		if res.RotatedTo != "" {
			fmt.Printf("%s Previous snapshot moved to %s\n", ui.RenderMuted("•"), res.RotatedTo)
		}
		names := make([]string, 0, len(res.Records))
		total := 0
		for name, n := range res.Records {
			names = append(names, name)
			total += n
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("   %-32s %8d\n", name, res.Records[name])
		}
		fmt.Printf("%s Exported %d records in %v (%s)\n",
			ui.RenderPass("✓"), total, res.Elapsed.Round(time.Millisecond), res.Dir)
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Snapshot directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}
