package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-commerce-backend/internal/logging"
	"github.com/ariefcatur/go-commerce-backend/internal/notify"
	"github.com/ariefcatur/go-commerce-backend/internal/report"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Log report commands",
	}
	cmd.AddCommand(reportSendCmd(), reportSchedulesCmd())
	return cmd
}

func reportSendCmd() *cobra.Command {
	var (
		recipients []string
		days       int
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Mail a log report now",
		Long: `Generate a report from LOG_DIR and mail it immediately.

Without --to the LOG_REPORT_RECIPIENTS list is used.

Examples:
  shopctl report send --to ops@example.com --days 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := env()
			mailer, err := notify.NewMailer(cfg.SMTP, logging.Component(log, "mailer"))
			if err != nil {
				return err
			}
			sched := &report.Scheduler{
				Config: cfg.LogReport,
				Sender: &report.Sender{
					Generator: &report.Generator{Dir: cfg.Log.Dir, Started: time.Now()},
					Mailer:    mailer,
					App:       cfg.AppName,
					Log:       logging.Component(log, "report"),
				},
				Log: logging.Component(log, "scheduler"),
			}
			res, err := sched.SendNow(cmd.Context(), recipients, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d/%d (%d failed)\n", res.Successful, res.Total, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d report(s) not delivered", res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&recipients, "to", nil, "recipient addresses")
	cmd.Flags().IntVar(&days, "days", 0, "report period in days (default from config)")
	return cmd
}

func reportSchedulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedules",
		Short: "List the supported report frequencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCRON\tDAYS\tDESCRIPTION")
			for _, s := range report.AvailableSchedules() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Name, s.Pattern, s.Days, s.Description)
			}
			return w.Flush()
		},
	}
}
