package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leftmike/frankensqlite/engine"
	"github.com/leftmike/frankensqlite/repl"
)

var (
	replCmd = &cobra.Command{
		Use:   "repl [script...]",
		Short: "Run with an interactive console session",
		RunE:  replRun,
	}

	database = "fsqlite.db"
	memory   = false
)

func initReplFlags(fs *pflag.FlagSet) {
	fs.StringVar(&database, "database", database, "database `file` to open")
	fs.BoolVar(&memory, "memory", memory, "use an in-memory database")
}

func init() {
	initReplFlags(replCmd.Flags())

	fsqliteCmd.AddCommand(replCmd)
}

func replRun(cmd *cobra.Command, args []string) error {
	var db *engine.DB
	var err error
	if memory {
		db, err = engine.OpenMemory(database)
	} else {
		db, err = engine.Open(database)
	}
	if err != nil {
		return err
	}
	defer db.Close()
	log.WithField("database", database).Info("session started")

	if len(args) > 0 {
		ses := repl.NewSession(db)
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			repl.Repl(ses, f, os.Stdout)
			f.Close()
		}
		return nil
	}

	repl.Interact(db, os.Stdout)
	return nil
}
