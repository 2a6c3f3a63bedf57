// Package database adapts database/sql to the executor contract used by the
// query and schema packages: run, get, all, each, exec and prepare, all
// context aware and all reporting engine failures as *EngineError.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/joe-ervin05/litetable/config"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// ErrStop can be returned from an Each callback to end the iteration early
// without reporting an error.
var ErrStop = errors.New("stop iteration")

// DB is a single-connection handle to a SQLite or libsql database.
type DB struct {
	executor
	Client *sql.DB
}

// Tx is a transaction on a DB. It implements Executor.
type Tx struct {
	executor
	tx *sql.Tx
}

var (
	_ Executor = (*DB)(nil)
	_ Executor = (*Tx)(nil)
)

// Open connects using the database URL and auth token from cfg.
// Remote libsql URLs (libsql://, http(s)://, ws(s)://) use the libsql driver;
// everything else is treated as a local SQLite file or ":memory:".
func Open(ctx context.Context, cfg config.Config) (*DB, error) {
	driver, dsn, err := driverFor(cfg.DatabaseURL, cfg.AuthToken)
	if err != nil {
		return nil, err
	}

	client, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	// Pragmas such as foreign_keys and legacy_alter_table are per connection,
	// and ":memory:" databases exist only on the connection that created them.
	client.SetMaxOpenConns(1)
	client.SetMaxIdleConns(1)
	client.SetConnMaxLifetime(0)

	if err := client.PingContext(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return Wrap(client, cfg.LockRetries), nil
}

// Wrap adapts an existing *sql.DB. The caller is responsible for limiting it
// to one open connection.
func Wrap(client *sql.DB, lockRetries int) *DB {
	if lockRetries < 0 {
		lockRetries = defaultLockRetries
	}
	return &DB{executor: executor{runner: client, retries: lockRetries}, Client: client}
}

func driverFor(rawURL, authToken string) (driver, dsn string, err error) {
	if rawURL == "" {
		return "", "", errors.New("database url is empty")
	}

	lower := strings.ToLower(rawURL)
	for _, scheme := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if !strings.HasPrefix(lower, scheme) {
			continue
		}
		if authToken == "" {
			return "libsql", rawURL, nil
		}
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", "", fmt.Errorf("invalid database url: %w", err)
		}
		q := u.Query()
		q.Set("authToken", authToken)
		u.RawQuery = q.Encode()
		return "libsql", u.String(), nil
	}

	return "sqlite3", rawURL, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.Client.Close()
}

// Transaction runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.Client.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{executor: executor{runner: sqlTx, retries: db.retries}, tx: sqlTx}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Stmt returns a transaction-specific copy of a statement prepared on the DB.
// The copy is released when the transaction ends; Finalize on it is optional.
func (tx *Tx) Stmt(ctx context.Context, s *Stmt) *Stmt {
	return newStmt(s.SQL, tx.tx.StmtContext(ctx, s.stmt), tx.retries)
}
