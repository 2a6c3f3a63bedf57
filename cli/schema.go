package cli

import (
	"fmt"
	"strings"

	"github.com/joe-ervin05/litetable/schema"
	"github.com/joe-ervin05/litetable/tools"
	"github.com/spf13/cobra"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect live tables and render declarations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <table>",
		Short: "Print the schema of an existing table as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			s, ok, err := schema.SchemaFromDatabase(ctx, db, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return tools.TableNotFoundErr(args[0])
			}
			return writeJSONIndent(cmd.OutOrStdout(), s)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "render <schema.json>",
		Short: "Print the CREATE statements for a schema file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFile(args[0])
			if err != nil {
				return err
			}
			schemas, err := schema.LoadSchemas(data)
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			for _, s := range schemas {
				stmts, err := schema.RenderCreateStatements(s)
				if err != nil {
					return fmt.Errorf("table %s: %w", s.Name, err)
				}
				fmt.Fprintln(out, strings.Join(stmts, ";\n")+";")
			}
			return nil
		},
	})

	return cmd
}
