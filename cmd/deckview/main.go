package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"deckview/internal/logging"
	"deckview/internal/startup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cliFlags holds the flag values shared by every command.
type cliFlags struct {
	configFile string
	dataDir    string
	logLevel   string
	host       string
	port       int
	noWatch    bool
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(serve)
}

// newRootCmdWith builds the command tree; run is called with the loaded
// configuration when no subcommand is given.
func newRootCmdWith(run func(context.Context, *startup.Config) error) *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:   "deckview [directory]",
		Short: "Browse a folder of slides, documents and notes in the browser",
		Long: `deckview indexes a content directory, converts office documents to PDF
with LibreOffice on demand, renders page thumbnails and serves the library
over HTTP. Changes on disk are pushed to connected browsers.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "path to a TOML config file (default $DECKVIEW_CONFIG)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "directory for the database and artifact cache (default ~/.deckview)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	f := root.Flags()
	f.IntVarP(&flags.port, "port", "p", 0, "port to listen on (default 8000)")
	f.StringVar(&flags.host, "host", "", "address to bind (default 127.0.0.1)")
	f.BoolVar(&flags.noWatch, "no-watch", false, "disable filesystem watching and live updates")

	root.AddCommand(newVersionCmd(), newCacheCmd(flags))
	return root
}

// loadConfig layers the flags that were explicitly set over file and
// environment configuration, then applies the log level.
func loadConfig(cmd *cobra.Command, flags *cliFlags, args []string) (*startup.Config, error) {
	var o startup.Overrides
	if len(args) > 0 {
		o.ContentDir = &args[0]
	}
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("data-dir") {
		o.DataDir = &flags.dataDir
	}
	if changed("log-level") {
		o.LogLevel = &flags.logLevel
	}
	if changed("host") {
		o.Host = &flags.host
	}
	if changed("port") {
		o.Port = &flags.port
	}
	if changed("no-watch") {
		watch := !flags.noWatch
		o.Watch = &watch
	}

	cfg, err := startup.LoadConfig(startup.LoadOptions{ConfigFile: flags.configFile, Overrides: o})
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if level, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logging.SetLevel(level)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := startup.GetBuildInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "deckview %s\n", info.Version)
			fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
			fmt.Fprintf(out, "  go version: %s\n", info.GoVersion)
		},
	}
}
