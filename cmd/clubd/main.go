package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	logger := log.New(os.Stdout, "clubd ", log.LstdFlags)

	// Secrets such as the JWT key and VAPID keys usually come from .env and
	// are referenced as ${VAR} in the config file.
	envPath := os.Getenv("DOTENV_PATH")
	if envPath == "" {
		envPath = ".env"
	}
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		logger.Printf("could not load %s: %v", envPath, err)
	}

	if err := newRootCommand(logger).Execute(); err != nil {
		logger.Fatal(err)
	}
}

type rootOptions struct {
	ConfigPath string
}

func newRootCommand(logger *log.Logger) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "clubd",
		Short: "Club operational state and board game reservation backend",
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "./config/config.yaml"
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultConfig, "path to the YAML configuration file")

	cmd.AddCommand(newServeCommand(opts, logger))
	cmd.AddCommand(newSweepCommand(opts, logger))
	cmd.AddCommand(newMaterializeCommand(opts, logger))

	return cmd
}
