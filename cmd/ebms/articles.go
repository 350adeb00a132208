package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nciocpl/ebms/internal/manifest"
	"github.com/nciocpl/ebms/internal/ui"
)

var articlesCmd = &cobra.Command{
	Use:     "articles",
	GroupID: "maint",
	Short:   "Article XML file maintenance",
}

var articlesRefreshCmd = &cobra.Command{
	Use:   "refresh-xml",
	Short: "Write new and changed article XML and rebuild the manifest",
	Long: `Compare the SHA-1 of every article's XML in the database with
articles.manifest, write the XML of new and changed articles to
articles/<id>.xml, and rewrite articles.manifest and articles.sums.
The previous manifest is kept as articles.manifest.<unix mtime>.

The sums file can be checked with 'sha1sum -c articles.sums'.`,
	Run: func(cmd *cobra.Command, args []string) {
		reportOnly, _ := cmd.Flags().GetBool("report-only")

		db := openStore()
		defer db.Close()
		logger := newLogger("articles")
		defer logger.Close()

		ctx, cancel := signalContext()
		defer cancel()

		res, err := manifest.Refresh(ctx, db, manifest.Options{
			Dir:        cfg.Dir,
			Manifest:   cfg.Paths.Manifest,
			Sums:       cfg.Paths.Sums,
			Articles:   cfg.Paths.Articles,
			ReportOnly: reportOnly,
			Logger:     logger.Logger,
		})
		if err != nil {
			fatalf("%v", err)
		}

		verb := "Refreshed"
		if reportOnly {
			verb = "Would refresh"
		}
		fmt.Printf("%s %s: %d added, %d updated, %d unchanged in %v\n",
			ui.RenderPass("✓"), verb, res.Added, res.Updated, res.Unchanged,
			res.Elapsed.Round(time.Millisecond))
		if res.RotatedTo != "" {
			fmt.Printf("   Previous manifest: %s\n", res.RotatedTo)
		}
	},
}

func init() {
	articlesRefreshCmd.Flags().BoolP("report-only", "r", false, "Report what would change without writing anything")
	articlesCmd.AddCommand(articlesRefreshCmd)
	rootCmd.AddCommand(articlesCmd)
}
