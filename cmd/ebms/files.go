package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/nciocpl/ebms/internal/checksums"
	"github.com/nciocpl/ebms/internal/ui"
)

var filesCmd = &cobra.Command{
	Use:     "files",
	GroupID: "maint",
	Short:   "Managed file maintenance",
}

var filesVerifyCmd = &cobra.Command{
	Use:   "verify [OLD_SUMS]",
	Short: "Compare file checksums between the old and new servers",
	Long: `Compare a sha1sum listing taken on the old server (OLD_SUMS, or stdin;
gzip compressed input is detected) with the listing for this server
(paths.file_sums), for every public file in the exported files snapshot.

On the old server:
  find files -type f -exec sha1sum '{}' \; | gzip > files.sums.gz`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cutoffArg, _ := cmd.Flags().GetString("cutoff")
		cutoff, err := parseCutoff(cutoffArg)
		if err != nil {
			fatalf("--cutoff: %v", err)
		}

		var in io.Reader = os.Stdin
		if len(args) == 1 {
			// #nosec G304 - path from CLI
			f, err := os.Open(args[0])
			if err != nil {
				fatalf("%v", err)
			}
			defer f.Close()
			in = f
		}
		oldSums, err := readSums(in)
		if err != nil {
			fatalf("old server checksums: %v", err)
		}

		// #nosec G304 - path from configuration
		nf, err := os.Open(cfg.Path(cfg.Paths.FileSums))
		if err != nil {
			fatalf("%v", err)
		}
		defer nf.Close()
		newSums, err := readSums(nf)
		if err != nil {
			fatalf("new server checksums: %v", err)
		}

		filesPath := filepath.Join(cfg.Path(cfg.Paths.Exported), "files.json")
		// #nosec G304 - path from configuration
		ff, err := os.Open(filesPath)
		if err != nil {
			fatalf("%v", err)
		}
		defer ff.Close()

		res, err := checksums.Verify(oldSums, newSums, ff, cutoff, os.Stdout)
		if err != nil {
			fatalf("%v", err)
		}
		if res.OK() {
			fmt.Printf("%s all files match\n", ui.RenderPass("✓"))
			return
		}
		fmt.Printf("%s %d missing on old, %d missing on new, %d mismatched\n",
			ui.RenderWarn("⚠"), res.MissingOld, res.MissingNew, res.Mismatched)
		os.Exit(2)
	},
}

// parseCutoff accepts "YYYY-MM-DD hh:mm:ss" or "YYYY-MM-DD" in local time.
func parseCutoff(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or YYYY-MM-DD hh:mm:ss, got %q", s)
}

// readSums parses a sha1sum listing, transparently gunzipping it.
func readSums(r io.Reader) (checksums.Sums, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return checksums.ParseSums(gz)
	}
	return checksums.ParseSums(br)
}

func init() {
	filesVerifyCmd.Flags().StringP("cutoff", "c", "", "Skip files created after this date/time")
	filesCmd.AddCommand(filesVerifyCmd)
	rootCmd.AddCommand(filesCmd)
}
