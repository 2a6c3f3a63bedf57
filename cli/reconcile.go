package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/joe-ervin05/litetable/database"
	"github.com/joe-ervin05/litetable/schema"
	"github.com/joe-ervin05/litetable/table"
	"github.com/spf13/cobra"
)

func newReconcileCommand() *cobra.Command {
	var strict bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile <schema.json>",
		Short: "Create or migrate tables to match a schema file",
		Long: `Create every table declared in the schema file that does not exist yet,
and rebuild every table whose columns, keys or indices differ from the
declaration. Columns present in both versions keep their data.

The file holds one schema object or an array of them. Migration needs
foreign key enforcement to be off on the connection.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, args[0], strict, dryRun)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail on a table that differs instead of migrating it")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the statements that would run without changing anything")

	return cmd
}

func runReconcile(cmd *cobra.Command, path string, strict, dryRun bool) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	schemas, err := schema.LoadSchemas(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	ctx := cmd.Context()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	for _, s := range schemas {
		if dryRun {
			if err := printPlan(ctx, out, db, s); err != nil {
				return fmt.Errorf("table %s: %w", s.Name, err)
			}
			continue
		}

		tbl := table.New(db, s)
		var res schema.Result
		if strict {
			res, err = tbl.CreateTableIfNotExists(ctx)
		} else {
			res, err = tbl.CreateOrUpdateTable(ctx)
		}
		if err != nil {
			return fmt.Errorf("table %s: %w", s.Name, err)
		}

		switch {
		case res.WasCreated:
			printSuccess(out, "created %s", s.Name)
		case res.WasUpdated:
			printSuccess(out, "migrated %s", s.Name)
		default:
			printInfo(out, "%s is up to date", s.Name)
		}
	}
	return nil
}

func printPlan(ctx context.Context, out io.Writer, db *database.DB, s schema.Schema) error {
	state, live, diffs, err := schema.NewReconciler(db, s).State(ctx)
	if err != nil {
		return err
	}

	var stmts []string
	switch state {
	case schema.Equal:
		printInfo(out, "%s is up to date", s.Name)
		return nil
	case schema.Absent:
		printWarning(out, "%s does not exist", s.Name)
		if stmts, err = schema.RenderCreateStatements(s); err != nil {
			return err
		}
	case schema.Divergent:
		printWarning(out, "%s differs from its declaration", s.Name)
		for _, d := range diffs {
			printInfo(out, "  %s", d)
		}
		steps, err := schema.PlanMigration(s, live, s.Name+"_backup")
		if err != nil {
			return err
		}
		for _, step := range steps {
			stmts = append(stmts, step.SQL)
		}
	}

	for _, stmt := range stmts {
		fmt.Fprintln(out, stmt+";")
	}
	return nil
}
