package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leftmike/frankensqlite/sql"
)

var (
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(sql.Version())
		},
	}
)

func init() {
	fsqliteCmd.AddCommand(versionCmd)
}
