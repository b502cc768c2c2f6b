package repl

import (
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"

	"github.com/leftmike/frankensqlite/engine"
)

const historyFile = ".fsqlite_history"

// Interact runs the shell against an interactive terminal, with line
// editing and history via liner. It returns when the user sends EOF or
// aborts the prompt.
func Interact(db *engine.DB, w io.Writer) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	ses := NewSession(db)
	for {
		s, err := line.Prompt("fsqlite: ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			break
		}
		if err != nil {
			fmt.Fprintln(w, err)
			break
		}
		line.AppendHistory(s)
		if err := Dispatch(ses, s, w); err != nil {
			fmt.Fprintln(w, err)
		}
	}

	if f, err := os.Create(historyFile); err != nil {
		fmt.Fprintf(os.Stderr, "fsqlite: error writing history file, %s: %s\n", historyFile, err)
	} else {
		line.WriteHistory(f)
		f.Close()
	}
}
