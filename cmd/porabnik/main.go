package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/porabnik/internal/config"
)

// cli carries the state shared by all commands.
type cli struct {
	configPath string
	envFile    string
	dbPath     string
	addr       string
	logLevel   string

	cfg *config.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "porabnik",
		Short:         "Track power-consuming equipment per office",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.loadConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&c.envFile, "env-file", "", "dotenv file to load (default: .env if present)")
	flags.StringVarP(&c.dbPath, "db", "d", "", "SQLite database path (overrides config)")
	flags.StringVarP(&c.addr, "addr", "a", "", "listen address (overrides config)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		newServeCommand(c),
		newInitCommand(c),
		newOfficeCommand(c),
		newUserCommand(c),
		newSweepCommand(c),
	)
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath, c.envFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.Database.Path = c.dbPath
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = c.addr
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	c.cfg = cfg
	return nil
}
