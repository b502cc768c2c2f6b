// Package cmd wires the fsqlite binary's command tree: persistent logging
// and config flags on the root command, with repl and version subcommands.
package cmd

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/frankensqlite/config"
)

var (
	fsqliteCmd = &cobra.Command{
		Use:               "fsqlite",
		Short:             "An embeddable SQLite-compatible storage engine",
		Long:              "FrankenSQLite is a SQLite-file-format-compatible storage engine with page-level MVCC and serializable snapshot isolation.",
		PersistentPreRunE: fsqlitePreRun,
		PersistentPostRun: fsqlitePostRun,
	}

	logFile   = "fsqlite.log"
	logLevel  = "info"
	logStderr = false
	logWriter io.WriteCloser

	configFile = "fsqlite.hcl"
	noConfig   = false
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := fsqliteCmd.PersistentFlags()

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")
}

// Execute runs the command tree; main delegates here.
func Execute() error {
	return fsqliteCmd.Execute()
}

func fsqlitePreRun(cmd *cobra.Command, args []string) error {
	if configFile != "" && !noConfig {
		if _, err := os.Stat(configFile); err == nil {
			if err := config.Load(configFile); err != nil {
				return fmt.Errorf("fsqlite: %s", err)
			}
		}
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			return fmt.Errorf("fsqlite: %s", err)
		}
		log.SetOutput(logWriter)
	}

	lvl, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("fsqlite: %s", err)
	}
	log.SetLevel(lvl)
	return nil
}

func fsqlitePostRun(cmd *cobra.Command, args []string) {
	if logWriter != nil {
		logWriter.Close()
		logWriter = nil
	}
}
