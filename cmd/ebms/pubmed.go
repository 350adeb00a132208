package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nciocpl/ebms/internal/notify"
	"github.com/nciocpl/ebms/internal/pubmed"
	"github.com/nciocpl/ebms/internal/retry"
	"github.com/nciocpl/ebms/internal/ui"
)

var pubmedCmd = &cobra.Command{
	Use:     "pubmed",
	GroupID: "jobs",
	Short:   "PubMed refresh jobs",
}

var pubmedUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Record NLM modification dates and refresh modified article XML",
	Long: `Ask the EBMS web application for its PubMed articles, ask NLM which of
them were modified on each day since the latest recorded modification,
post those dates back, and have the web application refetch the modified
XML. A report is emailed to the configured recipients.

--latest-mod and --stop accept YYYY-MM-DD or phrases like "last monday".`,
	Run: func(cmd *cobra.Command, args []string) {
		host, _ := cmd.Flags().GetString("host")
		latestMod, _ := cmd.Flags().GetString("latest-mod")
		stop, _ := cmd.Flags().GetString("stop")
		noMail, _ := cmd.Flags().GetBool("no-mail")
		if host == "" {
			host = cfg.PubMed.Host
		}
		if host == "" {
			fatalf("no EBMS host given (set pubmed.host or use --host)")
		}

		logger := newLogger("pubmed")
		defer logger.Close()

		policy := retry.FromConfig(cfg.Retry)
		client := pubmed.NewClient(cfg.PubMed.Scheme, host, cfg.PubMed.Timeout, policy)
		client.Logger = logger.Logger
		nlm := pubmed.NewNLM(cfg.PubMed.ESearch, cfg.PubMed.Timeout)
		nlm.Logger = logger.Logger

		job := &pubmed.Job{
			Host:   host,
			Client: client,
			Updater: &pubmed.Updater{
				NLM:       nlm,
				Web:       client,
				BatchSize: cfg.PubMed.BatchSize,
				DayPause:  cfg.PubMed.DayPause,
				Logger:    logger.Logger,
			},
			Logger:  logger.Logger,
			StopLag: cfg.PubMed.StopLag,
		}
		if !noMail && len(cfg.SMTP.To) > 0 {
			job.Mailer = notify.NewSMTPMailer(cfg.SMTP)
		}

		now := time.Now()
		var err error
		if latestMod != "" {
			if job.LatestMod, err = pubmed.ParseDate(latestMod, now); err != nil {
				fatalf("--latest-mod: %v", err)
			}
		}
		if stop != "" {
			if job.Stop, err = pubmed.ParseDate(stop, now); err != nil {
				fatalf("--stop: %v", err)
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		report, err := job.Run(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %s\n%s\n", ui.RenderPass("✓"), host, report)
	},
}

func init() {
	pubmedUpdateCmd.Flags().String("host", "", "EBMS web server (default pubmed.host)")
	pubmedUpdateCmd.Flags().String("latest-mod", "", "First day to check (default: latest recorded modification)")
	pubmedUpdateCmd.Flags().String("stop", "", "Day to stop before (default: today minus pubmed.stop_lag)")
	pubmedUpdateCmd.Flags().Bool("no-mail", false, "Do not email the report")

	pubmedCmd.AddCommand(pubmedUpdateCmd)
	rootCmd.AddCommand(pubmedCmd)
}
