package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// SQLOpener opens cursors through database/sql against whichever driver
// the embedding application registered.
type SQLOpener struct {
	DriverName string
	DSN        string
}

// NewSQLOpenerFromEnv reads the driver and DSN from WAREHOUSE_DRIVER and
// WAREHOUSE_DSN.
func NewSQLOpenerFromEnv() *SQLOpener {
	return &SQLOpener{
		DriverName: os.Getenv("WAREHOUSE_DRIVER"),
		DSN:        os.Getenv("WAREHOUSE_DSN"),
	}
}

// OpenCursor opens a dedicated connection pool for one load. The DSN is
// used unchanged; the database name only appears in the connection error,
// and the load statements address tables by fully qualified name.
func (o *SQLOpener) OpenCursor(ctx context.Context, database string) (Cursor, error) {
	if o.DriverName == "" {
		return nil, fmt.Errorf("%w: WAREHOUSE_DRIVER is not set", ErrWarehouse)
	}
	db, err := sql.Open(o.DriverName, o.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s connection: %v", ErrWarehouse, o.DriverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connecting to %s: %v", ErrWarehouse, database, err)
	}
	return &sqlCursor{db: db}, nil
}

type sqlCursor struct {
	db *sql.DB
}

// Execute runs one statement and returns its result rows. Statements the
// driver rejects as queries fall back to exec with the affected row count
// as the single result cell.
func (c *sqlCursor) Execute(ctx context.Context, stmt string) ([][]any, error) {
	rows, err := c.db.QueryContext(ctx, stmt)
	if err != nil {
		result, execErr := c.db.ExecContext(ctx, stmt)
		if execErr != nil {
			return nil, err
		}
		affected, _ := result.RowsAffected()
		return [][]any{{affected}}, nil
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

func (c *sqlCursor) Close() error {
	return c.db.Close()
}
