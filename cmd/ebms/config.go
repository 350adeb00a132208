package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/nciocpl/ebms/internal/config"
	"github.com/nciocpl/ebms/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maint",
	Short:   "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter ebms.toml",
	// The file being created must not be required to exist.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Configure(os.Stdout)
	},
	Run: func(cmd *cobra.Command, args []string) {
		path := configFile
		if path == "" {
			path = filepath.Join(workDir, config.FileName+".toml")
		}
		if err := config.WriteDefault(path); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		shown := *cfg
		if shown.SMTP.Password != "" {
			shown.SMTP.Password = "********"
		}
		if err := toml.NewEncoder(os.Stdout).Encode(shown); err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
