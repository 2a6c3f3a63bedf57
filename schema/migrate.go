package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/joe-ervin05/litetable/database"
	"github.com/joe-ervin05/litetable/tools"
)

// MigrationStep is one statement of a table rebuild.
type MigrationStep struct {
	Description string `json:"description"`
	SQL         string `json:"sql"`
}

// PlanMigration returns the steps that rebuild the live table as declared:
// rename it to backup, drop its indices, create the declared table and
// indices, copy the columns both share, and drop the backup.
func PlanMigration(declared, live Schema, backup string) ([]MigrationStep, error) {
	creates, err := RenderCreateStatements(declared)
	if err != nil {
		return nil, err
	}
	if err := tools.ValidateTableName(backup); err != nil {
		return nil, err
	}

	steps := []MigrationStep{{
		Description: "rename " + live.Name + " to " + backup,
		SQL:         "ALTER TABLE " + live.Name + " RENAME TO " + backup,
	}}

	// Explicit index names survive the rename and would block the
	// CREATE INDEX IF NOT EXISTS statements below.
	for _, name := range sortedKeys(live.Indices) {
		ix := indexName(live.Name, name)
		steps = append(steps, MigrationStep{
			Description: "drop index " + ix,
			SQL:         "DROP INDEX IF EXISTS " + ix,
		})
	}

	steps = append(steps, MigrationStep{Description: "create " + declared.Name, SQL: creates[0]})
	for _, stmt := range creates[1:] {
		steps = append(steps, MigrationStep{Description: "create index", SQL: stmt})
	}

	if copySQL := buildDataCopySQL(backup, declared, live); copySQL != "" {
		steps = append(steps, MigrationStep{Description: "copy rows from " + backup, SQL: copySQL})
	}

	steps = append(steps, MigrationStep{Description: "drop " + backup, SQL: "DROP TABLE " + backup})
	return steps, nil
}

// buildDataCopySQL copies the columns present in both schemas, in declared
// order. It returns "" when the schemas share no column.
func buildDataCopySQL(backup string, declared, live Schema) string {
	var cols []string
	for _, c := range declared.Columns {
		if _, ok := live.Column(c.Name); ok {
			cols = append(cols, c.Name)
		}
	}
	if len(cols) == 0 {
		return ""
	}
	list := strings.Join(cols, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", declared.Name, list, list, backup)
}

// migrate applies steps inside one transaction. legacy_alter_table stays on
// for the duration so the rename does not rewrite references held by other
// tables to the backup name.
func migrate(ctx context.Context, db *database.DB, table string, steps []MigrationStep) (err error) {
	if _, err := db.Run(ctx, "PRAGMA legacy_alter_table = ON"); err != nil {
		return fmt.Errorf("failed to enable legacy_alter_table: %w", err)
	}
	defer func() {
		if _, resetErr := db.Run(ctx, "PRAGMA legacy_alter_table = OFF"); resetErr != nil && err == nil {
			err = fmt.Errorf("failed to disable legacy_alter_table: %w", resetErr)
		}
	}()

	return db.Transaction(ctx, func(tx *database.Tx) error {
		for i, step := range steps {
			if _, err := tx.Run(ctx, step.SQL); err != nil {
				return fmt.Errorf("migration step %d (%s) failed: %w\nSQL: %s", i+1, step.Description, err, step.SQL)
			}
			tools.Logger.Info("migration step applied",
				"table", table,
				"step", i+1,
				"description", step.Description)
		}

		// Foreign keys are off, so dangling references are reported, not fatal.
		violations, err := tx.All(ctx, "PRAGMA foreign_key_check("+table+")")
		switch {
		case err != nil:
			tools.Logger.Warn("foreign key check failed", "table", table, "error", err)
		case len(violations) > 0:
			tools.Logger.Warn("migrated table has foreign key violations",
				"table", table,
				"violations", len(violations))
		}
		return nil
	})
}
