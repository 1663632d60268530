package cli

import (
	"errors"
	"io/fs"
	"os"

	"riskgate/internal/config"
	"riskgate/internal/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
	log        *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "riskgate",
	Short: "Client risk scoring for web traffic",
	Long:  "Fingerprints browser clients, scores automation and environment tampering, and keeps a time-limited blacklist of repeat offenders.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log = logger.New(os.Stderr)
		loaded, err := config.LoadConfig(configPath)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			log.WithField("path", configPath).Info("No config file, using defaults")
		default:
			return err
		}
		cfg = loaded
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML config")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
