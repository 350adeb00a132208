// Command ebms bundles the administrative jobs behind the EBMS literature
// review site: snapshot export and delta computation, the scheduled
// PubMed refresh, article XML manifests, file checksum verification, and
// ad hoc reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nciocpl/ebms/internal/config"
	"github.com/nciocpl/ebms/internal/logging"
	"github.com/nciocpl/ebms/internal/store"
	"github.com/nciocpl/ebms/internal/ui"
)

var (
	workDir    string
	configFile string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ebms",
	Short: "EBMS administrative tools",
	Long: `Administrative jobs for the EBMS literature review site.

Settings are read from ebms.toml (or ebms.yaml) in the working directory
or $HOME/.config/ebms, and may be overridden with EBMS_* environment
variables. Run 'ebms config init' to write a starter file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Configure(os.Stdout)
		loaded, err := config.Load(workDir, configFile)
		if err != nil {
			fatalf("loading configuration: %v", err)
		}
		if verbose {
			loaded.Log.Verbose = true
		}
		cfg = loaded
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "snapshot", Title: "Snapshot Commands:"},
		&cobra.Group{ID: "jobs", Title: "Scheduled Jobs:"},
		&cobra.Group{ID: "maint", Title: "Maintenance Commands:"},
	)
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "Working directory holding the snapshots")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (default: ebms.toml in --dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug detail")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatalf prints an error in the usual form and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s "+format+"\n", append([]any{ui.RenderFail("Error:")}, args...)...)
	os.Exit(1)
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(component string) *logging.Logger {
	return logging.New(component, cfg.Log)
}

func openStore() *store.DB {
	db, err := store.OpenReadOnly(cfg.Path(cfg.Database.Path))
	if err != nil {
		fatalf("opening database: %v", err)
	}
	return db
}
