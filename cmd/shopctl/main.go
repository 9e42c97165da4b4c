package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-commerce-backend/internal/config"
	"github.com/ariefcatur/go-commerce-backend/internal/logging"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "Operator tooling for the commerce backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(queueCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env loads configuration and a logger that writes to stderr only, so
// command output stays parseable.
func env() (config.Config, *logrus.Logger) {
	cfg := config.Load()
	log := logging.New(cfg.Log.Level, "")
	log.SetOutput(os.Stderr)
	return cfg, log
}
