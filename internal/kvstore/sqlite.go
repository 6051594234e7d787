package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const takeTimeout = 5 * time.Second

const schemaSQL = `CREATE TABLE IF NOT EXISTS kv (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	kind      INTEGER NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (namespace, key)
)`

const upsertSQL = `INSERT INTO kv (namespace, key, kind, value) VALUES (?, ?, ?, ?)
	ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`

// Settings persisted in a SQLite database file
type SQLite struct {
	pool      *sqlitex.Pool
	namespace string
}

// Opens (creating if needed) the database at path and scopes the handle to namespace
func OpenSQLite(path string, namespace string) (store *SQLite, err error) {
	if path == "" {
		err = fmt.Errorf("database path is required")
		return
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    2,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		err = fmt.Errorf("failed to open key-value database %s: %w", path, err)
		return
	}

	store = &SQLite{pool: pool, namespace: namespace}

	err = store.withConn(func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, schemaSQL, nil)
	})
	if err != nil {
		_ = pool.Close()
		store = nil
		err = fmt.Errorf("failed to create key-value schema: %w", err)
	}
	return
}

func prepareConnection(conn *sqlite.Conn) (err error) {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		err = sqlitex.ExecuteTransient(conn, pragma, nil)
		if err != nil {
			err = fmt.Errorf("%s: %w", pragma, err)
			return
		}
	}
	return
}

func (store *SQLite) withConn(fn func(conn *sqlite.Conn) error) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), takeTimeout)
	defer cancel()

	conn, err := store.pool.Take(ctx)
	if err != nil {
		err = fmt.Errorf("failed to take database connection: %w", err)
		return
	}
	defer store.pool.Put(conn)

	err = fn(conn)
	return
}

func (store *SQLite) GetStr(key string) (value string, found bool, err error) {
	err = store.withConn(func(conn *sqlite.Conn) error {
		var getErr error
		value, found, getErr = store.get(conn, key, kindStr)
		return getErr
	})
	return
}

func (store *SQLite) GetU8(key string) (value uint8, found bool, err error) {
	var raw string
	err = store.withConn(func(conn *sqlite.Conn) error {
		var getErr error
		raw, found, getErr = store.get(conn, key, kindU8)
		return getErr
	})
	if err != nil || !found {
		return
	}
	value, err = parseU8(raw)
	return
}

func (store *SQLite) SetStr(key string, value string) (err error) {
	err = store.withConn(func(conn *sqlite.Conn) error {
		return store.set(conn, key, kindStr, value)
	})
	return
}

func (store *SQLite) SetU8(key string, value uint8) (err error) {
	err = store.withConn(func(conn *sqlite.Conn) error {
		return store.set(conn, key, kindU8, strconv.Itoa(int(value)))
	})
	return
}

// Runs fn inside a savepoint; any error rolls back every write fn made
func (store *SQLite) Update(fn func(tx Writer) error) (err error) {
	err = store.withConn(func(conn *sqlite.Conn) (txErr error) {
		release := sqlitex.Save(conn)
		defer release(&txErr)

		txErr = fn(&sqliteTx{store: store, conn: conn})
		return
	})
	return
}

func (store *SQLite) Close() (err error) {
	err = store.pool.Close()
	return
}

type sqliteTx struct {
	store *SQLite
	conn  *sqlite.Conn
}

func (tx *sqliteTx) SetStr(key string, value string) (err error) {
	err = tx.store.set(tx.conn, key, kindStr, value)
	return
}

func (tx *sqliteTx) SetU8(key string, value uint8) (err error) {
	err = tx.store.set(tx.conn, key, kindU8, strconv.Itoa(int(value)))
	return
}

func (store *SQLite) get(conn *sqlite.Conn, key string, want valueKind) (value string, found bool, err error) {
	if err = validateKey(key); err != nil {
		return
	}

	var kind valueKind
	err = sqlitex.Execute(conn, "SELECT kind, value FROM kv WHERE namespace = ? AND key = ?", &sqlitex.ExecOptions{
		Args: []any{store.namespace, key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			kind = valueKind(stmt.ColumnInt(0))
			value = stmt.ColumnText(1)
			found = true
			return nil
		},
	})
	if err != nil {
		err = fmt.Errorf("failed to read %q: %w", key, err)
		return
	}
	if found && kind != want {
		found = false
		value = ""
		err = fmt.Errorf("%w: %q holds %s, read as %s", ErrKindMismatch, key, kind, want)
	}
	return
}

func (store *SQLite) set(conn *sqlite.Conn, key string, kind valueKind, value string) (err error) {
	if err = validateKey(key); err != nil {
		return
	}

	// Refuse to change the type of an existing key
	if _, _, err = store.get(conn, key, kind); err != nil {
		return
	}

	err = sqlitex.Execute(conn, upsertSQL, &sqlitex.ExecOptions{
		Args: []any{store.namespace, key, int(kind), value},
	})
	if err != nil {
		err = fmt.Errorf("failed to write %q: %w", key, err)
	}
	return
}
