package cli

import (
	"fmt"

	"github.com/joe-ervin05/litetable/query"
	"github.com/joe-ervin05/litetable/schema"
	"github.com/joe-ervin05/litetable/table"
	"github.com/joe-ervin05/litetable/tools"
	"github.com/spf13/cobra"
)

func newUpsertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upsert <table> <row>",
		Short: "Insert a row or update the row holding the same unique value",
		Long: `Insert the JSON row, or update the existing row that holds the same value
in the row's first unique column (primary key or UNIQUE, in column order).
The stored row is printed as JSON.`,
		Example: `  litetable upsert users '{"email": "ann@example.com", "name": "Ann"}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := query.ParseJSON([]byte(args[1]))
			if err != nil {
				return fmt.Errorf("failed to parse row: %w", err)
			}

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

			stored, err := table.New(db, s).InsertUpdateUnique(ctx, row)
			if err != nil {
				return err
			}
			return writeJSONLine(cmd.OutOrStdout(), stored)
		},
	}
}
