// Package sqlstore implements the store.Store interface on database/sql,
// backed by SQLite (modernc.org/sqlite) or PostgreSQL (lib/pq).
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/alfredjeanlab/contokens/internal/model"
	"github.com/alfredjeanlab/contokens/internal/store"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// Options configures a Store.
type Options struct {
	Driver string // "sqlite" or "postgres"
	DSN    string // sqlite file path or postgres URL
	Types  model.TypeSet

	// Now stamps issued tokens. Defaults to time.Now.
	Now func() time.Time
}

// Store implements store.Store backed by a SQL database.
type Store struct {
	db      *sql.DB
	dialect dialect
	types   model.TypeSet
	now     func() time.Time
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Open connects to the database described by opts. It does not create the
// schema; call Init once per database for that.
func Open(opts Options) (*Store, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driverName, d.dsn(opts.DSN))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newStore(db, d, opts), nil
}

// New wraps an existing connection pool. driver selects the SQL dialect.
func New(db *sql.DB, opts Options) (*Store, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	return newStore(db, d, opts), nil
}

func newStore(db *sql.DB, d dialect, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, dialect: d, types: opts.Types, now: now}
}

// Init creates the tokens table and its indexes. It fails with
// store.ErrAlreadyInitialized when the schema is already in place.
func (s *Store) Init(ctx context.Context) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations/"+s.dialect.name)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := s.dialect.migrationDriver(s.db)
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, s.dialect.name, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return store.ErrAlreadyInitialized
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// inExclusiveTx runs fn on a dedicated connection inside a transaction that
// excludes every other writer, committing on success and rolling back on error.
func (s *Store) inExclusiveTx(ctx context.Context, fn func(db executor) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	rollback := func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
	}

	for i, stmt := range s.dialect.beginExclusive {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			if i > 0 {
				rollback()
			}
			return fmt.Errorf("begin exclusive transaction: %w", err)
		}
	}

	if err := fn(conn); err != nil {
		rollback()
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		rollback()
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// InsertBatch consumes tokens lazily and inserts them in one all-or-nothing
// transaction. An error yielded by the sequence aborts the batch unchanged.
func (s *Store) InsertBatch(ctx context.Context, tokens iter.Seq2[model.Token, error]) (int, error) {
	var n int
	err := s.inExclusiveTx(ctx, func(db executor) error {
		for tok, err := range tokens {
			if err != nil {
				return err
			}
			if err := s.types.Check(tok.Type); err != nil {
				return err
			}
			if err := model.ValidateToken(&tok); err != nil {
				return fmt.Errorf("token %d: %w", n+1, err)
			}
			if err := queryInsertToken(ctx, db, s.dialect, tok); err != nil {
				if s.dialect.uniqueViolation(err) {
					return fmt.Errorf("%w: %w", model.ErrDuplicateToken, err)
				}
				return fmt.Errorf("insert token: %w", err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// CountAvailable returns the number of unissued tokens of tokenType.
func (s *Store) CountAvailable(ctx context.Context, tokenType string) (int, error) {
	if err := s.types.Check(tokenType); err != nil {
		return 0, err
	}
	return queryCountAvailable(ctx, s.db, s.dialect, tokenType)
}

// Reserve issues up to count unissued tokens of tokenType to recipient.
// Fewer tokens are returned, without error, when the supply runs short.
func (s *Store) Reserve(ctx context.Context, tokenType, recipient string, count int) ([]string, error) {
	if err := s.types.Check(tokenType); err != nil {
		return nil, err
	}
	if recipient == "" {
		return nil, fmt.Errorf("reserve tokens: recipient is required")
	}
	if count < 0 {
		return nil, fmt.Errorf("reserve tokens: count must not be negative, got %d", count)
	}
	if count == 0 {
		return nil, nil
	}

	var tokens []string
	err := s.inExclusiveTx(ctx, func(db executor) error {
		var err error
		tokens, err = querySelectAvailable(ctx, db, s.dialect, tokenType, count)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		for _, tok := range tokens {
			if err := queryIssueToken(ctx, db, s.dialect, tok, recipient, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// Find returns every token of tokenType issued to recipient.
func (s *Store) Find(ctx context.Context, tokenType, recipient string) ([]string, error) {
	if err := s.types.Check(tokenType); err != nil {
		return nil, err
	}
	return queryFind(ctx, s.db, s.dialect, tokenType, recipient)
}

// MarkExportedAndFetch selects the tokens matching q and, when q.SetExported
// is set, marks every unexported token of the type as exported. The returned
// tokens carry the exported flag they had when selected.
func (s *Store) MarkExportedAndFetch(ctx context.Context, q store.ExportQuery) ([]model.Token, error) {
	if q.Exported && q.SetExported {
		return nil, model.ErrContradictoryExport
	}
	if err := s.types.Check(q.Type); err != nil {
		return nil, err
	}

	var tokens []model.Token
	err := s.inExclusiveTx(ctx, func(db executor) error {
		var err error
		tokens, err = querySelectByExport(ctx, db, s.dialect, q.Type, q.Exported)
		if err != nil {
			return err
		}
		if q.SetExported {
			if _, err := queryMarkExported(ctx, db, s.dialect, q.Type); err != nil {
				return err
			}
		}
		if q.Deliver != nil {
			if err := q.Deliver(tokens); err != nil {
				return fmt.Errorf("deliver export: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// Statistics returns token counts grouped by type, issued and exported state.
func (s *Store) Statistics(ctx context.Context) ([]model.Stat, error) {
	return queryStatistics(ctx, s.db)
}
