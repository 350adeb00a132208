package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nciocpl/ebms/internal/config"
	"github.com/nciocpl/ebms/internal/snapshot"
	"github.com/nciocpl/ebms/internal/ui"
)

var deltasCmd = &cobra.Command{
	Use:     "deltas",
	GroupID: "snapshot",
	Short:   "Compute and promote snapshot deltas",
}

var deltasComputeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Find new and modified records between the baseline and exported snapshots",
	Long: `Compare every <type>.json in the baseline snapshot with the exported
snapshot and write the records that are new or modified to
<deltas>/new/<type>.json and <deltas>/mod/<type>.json.

Any previous deltas directory is renamed to <deltas>-YYYYMMDDhhmmss first.
Records present in the baseline but missing from the export are not
reported.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := deltaOptions(cmd)
		noLock, _ := cmd.Flags().GetBool("no-lock")
		watch, _ := cmd.Flags().GetBool("watch")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if !noLock {
			lock, err := snapshot.Lock(opts.OutputDir)
			if errors.Is(err, snapshot.ErrLocked) {
				fatalf("another delta computation is running (lock %s)", snapshot.LockPath(opts.OutputDir))
			}
			if err != nil {
				fatalf("%v", err)
			}
			defer lock.Unlock()
		}

		ctx, cancel := signalContext()
		defer cancel()

		if watch {
			debounce, _ := cmd.Flags().GetDuration("debounce")
			fmt.Printf("%s Watching %s (Ctrl+C to stop)\n", ui.RenderAccent("👁"), opts.ExportedDir)
			err := snapshot.Watch(ctx, opts, debounce, func(res *snapshot.Result, err error) {
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
					return
				}
				printDeltaResult(res, jsonOutput)
			})
			if err != nil {
				fatalf("%v", err)
			}
			return
		}

		res, err := snapshot.ComputeDeltas(ctx, opts)
		if err != nil {
			var mre *snapshot.MalformedRecordError
			if errors.As(err, &mre) {
				fatalf("%v\n       (rerun with --skip-malformed to log and skip such records)", err)
			}
			fatalf("%v", err)
		}
		printDeltaResult(res, jsonOutput)
	},
}

var deltasPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Make the exported snapshot the new baseline",
	Long: `Rename the baseline snapshot to baseline-YYYYMMDDhhmmss and the exported
snapshot to baseline. Run this once the computed deltas have been applied.`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		baseline := cfg.Path(cfg.Paths.Baseline)
		exported := cfg.Path(cfg.Paths.Exported)

		if !yes {
			if !ui.IsTerminal(os.Stdin) {
				fatalf("refusing to promote without --yes when not attached to a terminal")
			}
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Replace %s with %s?", baseline, exported)).
				Description("The current baseline will be kept under a timestamped name.").
				Affirmative("Promote").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				fatalf("%v", err)
			}
			if !confirmed {
				fmt.Println("Cancelled.")
				return
			}
		}

		res, err := snapshot.Promote(baseline, exported, time.Now())
		if err != nil {
			fatalf("%v", err)
		}
		if res.ArchivedBaseline != "" {
			fmt.Printf("%s Previous baseline kept as %s\n", ui.RenderMuted("•"), res.ArchivedBaseline)
		}
		fmt.Printf("%s %s is the new baseline\n", ui.RenderPass("✓"), res.Baseline)
	},
}

func deltaOptions(cmd *cobra.Command) snapshot.Options {
	baseline, _ := cmd.Flags().GetString("baseline")
	exported, _ := cmd.Flags().GetString("exported")
	output, _ := cmd.Flags().GetString("output")
	idKeysFile, _ := cmd.Flags().GetString("id-keys")
	skip, _ := cmd.Flags().GetBool("skip-malformed")

	keys := cfg.SnapshotIDKeys()
	if idKeysFile != "" {
		extra, err := config.LoadIDKeysFile(idKeysFile)
		if err != nil {
			fatalf("%v", err)
		}
		keys = keys.Merge(extra)
	}

	pick := func(flag, configured string) string {
		if flag != "" {
			return flag
		}
		return cfg.Path(configured)
	}
	logger := newLogger("deltas")
	logger.Debugf("identifying fields: %s", keys)
	return snapshot.Options{
		BaselineDir:   pick(baseline, cfg.Paths.Baseline),
		ExportedDir:   pick(exported, cfg.Paths.Exported),
		OutputDir:     pick(output, cfg.Paths.Deltas),
		IDKeys:        keys,
		SkipMalformed: skip,
		Logger:        logger.Logger,
	}
}

func printDeltaResult(res *snapshot.Result, jsonOutput bool) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fatalf("encoding result: %v", err)
		}
		return
	}

	if res.RotatedTo != "" {
		fmt.Printf("%s Previous deltas moved to %s\n", ui.RenderMuted("•"), res.RotatedTo)
	}
	for _, t := range res.Types {
		line := fmt.Sprintf("   %-32s new %6d  modified %6d  unchanged %8d", t.EntityType, t.New, t.Modified, t.Unchanged)
		switch {
		case t.ExportedMissing:
			fmt.Printf("%s %s\n", line, ui.RenderWarn("(not exported)"))
		case t.Skipped > 0:
			fmt.Printf("%s %s\n", line, ui.RenderWarn(fmt.Sprintf("(%d skipped)", t.Skipped)))
		default:
			fmt.Println(line)
		}
	}
	fmt.Printf("%s %d new, %d modified in %v (%s)\n",
		ui.RenderPass("✓"), res.TotalNew(), res.TotalModified(),
		res.Elapsed.Round(time.Millisecond), res.OutputDir)
}

func init() {
	deltasComputeCmd.Flags().String("baseline", "", "Baseline snapshot directory (default from config)")
	deltasComputeCmd.Flags().String("exported", "", "Exported snapshot directory (default from config)")
	deltasComputeCmd.Flags().StringP("output", "o", "", "Deltas output directory (default from config)")
	deltasComputeCmd.Flags().String("id-keys", "", "TOML, YAML or JSON file of entity type = identifying field overrides")
	deltasComputeCmd.Flags().Bool("skip-malformed", false, "Log and skip records that cannot be keyed instead of aborting")
	deltasComputeCmd.Flags().Bool("no-lock", false, "Do not take the output directory lock")
	deltasComputeCmd.Flags().Bool("watch", false, "Recompute whenever the exported snapshot changes")
	deltasComputeCmd.Flags().Duration("debounce", 5*time.Second, "Quiet period before recomputing in --watch mode")
	deltasComputeCmd.Flags().Bool("json", false, "Output results as JSON")

	deltasPromoteCmd.Flags().BoolP("yes", "y", false, "Promote without asking")

	deltasCmd.AddCommand(deltasComputeCmd)
	deltasCmd.AddCommand(deltasPromoteCmd)
	rootCmd.AddCommand(deltasCmd)
}
