package main

import (
	"fmt"
	"os"

	"github.com/autom8ter/sql2hub/errors"
	"github.com/spf13/cobra"

	_ "github.com/autom8ter/sql2hub/publisher/badger"
	_ "github.com/autom8ter/sql2hub/publisher/inmem"
	_ "github.com/autom8ter/sql2hub/publisher/redis"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "sql2hub",
		Short:         "sql2hub runs a sql query on a schedule and publishes its rows as batches of json documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a yaml or json config file (environment variables override it)")
	cmd.AddCommand(runCmd(&configPath))
	cmd.AddCommand(onceCmd(&configPath))
	cmd.AddCommand(schemaCmd(&configPath))
	cmd.AddCommand(queryCmd(&configPath))
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errors.Configuration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
