package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/joe-ervin05/litetable/database"
	"github.com/joe-ervin05/litetable/tools"
)

// State is how a live table relates to its declaration.
type State int

const (
	Absent State = iota
	Equal
	Divergent
)

func (s State) String() string {
	switch s {
	case Equal:
		return "equal"
	case Divergent:
		return "divergent"
	}
	return "absent"
}

// Result reports what a reconciliation did.
type Result struct {
	WasCreated bool `json:"wasCreated"`
	WasUpdated bool `json:"wasUpdated"`
}

// Reconciler brings one table in line with its declared schema.
type Reconciler struct {
	db     *database.DB
	schema Schema
	now    func() time.Time
}

// NewReconciler returns a Reconciler for s on db.
func NewReconciler(db *database.DB, s Schema) *Reconciler {
	return &Reconciler{db: db, schema: s, now: time.Now}
}

// Schema returns the declared schema.
func (r *Reconciler) Schema() Schema {
	return r.schema
}

// TableExists reports whether the declared table exists.
func (r *Reconciler) TableExists(ctx context.Context) (bool, error) {
	return TableExists(ctx, r.db, r.schema.Name)
}

// State introspects the live table and compares it with the declaration.
// The live schema and the differences are returned for a divergent table.
func (r *Reconciler) State(ctx context.Context) (State, Schema, []Difference, error) {
	if err := r.schema.Validate(); err != nil {
		return Absent, Schema{}, nil, err
	}

	live, ok, err := SchemaFromDatabase(ctx, r.db, r.schema.Name)
	if err != nil {
		return Absent, Schema{}, nil, err
	}
	if !ok {
		return Absent, Schema{}, nil, nil
	}

	diffs := Diff(r.schema, live)
	if len(diffs) == 0 {
		return Equal, live, nil, nil
	}
	return Divergent, live, diffs, nil
}

// CreateTableIfNotExists creates the table when it is absent. An existing
// table that does not match the declaration is an ErrSchemaMismatch.
func (r *Reconciler) CreateTableIfNotExists(ctx context.Context) (Result, error) {
	state, _, diffs, err := r.State(ctx)
	if err != nil {
		return Result{}, err
	}

	switch state {
	case Absent:
		if err := r.create(ctx); err != nil {
			return Result{}, err
		}
		return Result{WasCreated: true}, nil
	case Divergent:
		return Result{}, tools.SchemaMismatchErr(r.schema.Name, diffStrings(diffs))
	}

	tools.Logger.Info("table up to date", "table", r.schema.Name)
	return Result{}, nil
}

// CreateOrUpdateTable creates the table when it is absent and rebuilds it
// when it diverges from the declaration. Rebuilding requires foreign key
// enforcement to be off on the connection.
func (r *Reconciler) CreateOrUpdateTable(ctx context.Context) (Result, error) {
	state, live, diffs, err := r.State(ctx)
	if err != nil {
		return Result{}, err
	}

	switch state {
	case Absent:
		if err := r.create(ctx); err != nil {
			return Result{}, err
		}
		return Result{WasCreated: true}, nil
	case Equal:
		tools.Logger.Info("table up to date", "table", r.schema.Name)
		return Result{}, nil
	}

	enabled, err := r.foreignKeysEnabled(ctx)
	if err != nil {
		return Result{}, err
	}
	if enabled {
		return Result{}, fmt.Errorf("%w: run PRAGMA foreign_keys = OFF before migrating %s",
			tools.ErrForeignKeysMustBeDisabled, r.schema.Name)
	}

	backup := fmt.Sprintf("%s_backup_%d", r.schema.Name, r.now().UnixMilli())
	steps, err := PlanMigration(r.schema, live, backup)
	if err != nil {
		return Result{}, err
	}

	tools.Logger.Info("migrating table",
		"table", r.schema.Name,
		"backup", backup,
		"differences", diffStrings(diffs),
		"steps", len(steps))

	if err := migrate(ctx, r.db, r.schema.Name, steps); err != nil {
		return Result{}, err
	}

	tools.Logger.Info("table migrated", "table", r.schema.Name)
	return Result{WasUpdated: true}, nil
}

func (r *Reconciler) create(ctx context.Context) error {
	stmts, err := RenderCreateStatements(r.schema)
	if err != nil {
		return err
	}

	err = r.db.Transaction(ctx, func(tx *database.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Run(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	tools.Logger.Info("table created", "table", r.schema.Name, "indices", len(stmts)-1)
	return nil
}

func (r *Reconciler) foreignKeysEnabled(ctx context.Context) (bool, error) {
	row, err := r.db.Get(ctx, "PRAGMA foreign_keys")
	if err != nil {
		return false, err
	}
	on, _ := row["foreign_keys"].(int64)
	return on == 1, nil
}

func diffStrings(diffs []Difference) []string {
	out := make([]string, len(diffs))
	for i, d := range diffs {
		out[i] = d.String()
	}
	return out
}
