package main

import (
	"fmt"

	"github.com/autom8ter/sql2hub/util"
	"github.com/spf13/cobra"
)

func schemaCmd(configPath *string) *cobra.Command {
	var jsonSchema bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "print the columns the query returns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			executor, closer, err := openExecutor(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closer()
			schema, err := executor.DiscoverSchema(cmd.Context())
			if err != nil {
				return err
			}
			if jsonSchema {
				fmt.Fprintln(cmd.OutOrStdout(), string(schema.JSONSchema()))
				return nil
			}
			out, err := util.JSONToYAML([]byte(schema.String()))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonSchema, "json-schema", false, "print the json schema of the published documents")
	return cmd
}
