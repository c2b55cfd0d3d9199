package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/contokens/internal/model"
	"github.com/alfredjeanlab/contokens/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// newMockStore wraps a sqlmock database in a postgres-dialect Store.
func newMockStore(t *testing.T, now time.Time) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	s, err := New(db, Options{
		Driver: "postgres",
		Types:  model.NewTypeSet("GA", "VIP"),
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, mock
}

func expectBegin(mock sqlmock.Sqlmock) {
	mock.ExpectExec("^BEGIN$").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("LOCK TABLE tokens IN EXCLUSIVE MODE").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestNumberPlaceholders(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  string
	}{
		{"SELECT 1", "SELECT 1"},
		{"WHERE a = ?", "WHERE a = $1"},
		{"VALUES (?, ?, ?)", "VALUES ($1, $2, $3)"},
	} {
		if got := numberPlaceholders(tc.input); got != tc.want {
			t.Errorf("numberPlaceholders(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSQLiteDSN(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  string
	}{
		{"tokens.db", "file:tokens.db?_pragma=busy_timeout(5000)"},
		{"file:tokens.db", "file:tokens.db?_pragma=busy_timeout(5000)"},
		{"file:tokens.db?mode=rwc", "file:tokens.db?mode=rwc&_pragma=busy_timeout(5000)"},
	} {
		if got := sqliteDialect.dsn(tc.input); got != tc.want {
			t.Errorf("dsn(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestDialectFor(t *testing.T) {
	if _, err := dialectFor("sqlite"); err != nil {
		t.Errorf("sqlite: %v", err)
	}
	if _, err := dialectFor("postgres"); err != nil {
		t.Errorf("postgres: %v", err)
	}
	if _, err := dialectFor("mysql"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestPostgresUniqueViolation(t *testing.T) {
	if !postgresDialect.uniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("23505 should be a unique violation")
	}
	if postgresDialect.uniqueViolation(&pq.Error{Code: "23502"}) {
		t.Error("23502 is a not-null violation")
	}
	if postgresDialect.uniqueViolation(errors.New("boom")) {
		t.Error("plain errors are not unique violations")
	}
}

func TestScanHelpers(t *testing.T) {
	if nullTimePtr(nil).Valid {
		t.Error("nullTimePtr(nil) should be invalid")
	}
	now := time.Now()
	if nt := nullTimePtr(&now); !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("nullTimePtr(now) = %v", nt)
	}
	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("a@x.com"); !ns.Valid || ns.String != "a@x.com" {
		t.Errorf("nullString(\"a@x.com\") = %v", ns)
	}
}

func TestQueryCountAvailable(t *testing.T) {
	s, mock := newMockStore(t, time.Now())
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tokens WHERE token_type = \$1 AND email IS NULL`).
		WithArgs("GA").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountAvailable(context.Background(), "GA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("CountAvailable = %d, want 7", n)
	}
}

func TestCountAvailable_InvalidType(t *testing.T) {
	s, _ := newMockStore(t, time.Now())
	if _, err := s.CountAvailable(context.Background(), "BOGUS"); !errors.Is(err, model.ErrInvalidTokenType) {
		t.Fatalf("expected ErrInvalidTokenType, got %v", err)
	}
}

func TestReserve(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, mock := newMockStore(t, now)

	expectBegin(mock)
	mock.ExpectQuery(`SELECT token FROM tokens WHERE token_type = \$1 AND email IS NULL LIMIT \$2`).
		WithArgs("GA", 2).
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("tok-a").AddRow("tok-b"))
	for _, tok := range []string{"tok-a", "tok-b"} {
		mock.ExpectExec(`UPDATE tokens SET email = \$1, used_at = \$2 WHERE token = \$3 AND email IS NULL`).
			WithArgs("a@x.com", now, tok).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	got, err := s.Reserve(context.Background(), "GA", "a@x.com", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "tok-a" || got[1] != "tok-b" {
		t.Errorf("Reserve = %v, want [tok-a tok-b]", got)
	}
}

func TestReserve_AlreadyIssuedRollsBack(t *testing.T) {
	s, mock := newMockStore(t, time.Now())

	expectBegin(mock)
	mock.ExpectQuery("SELECT token FROM tokens").
		WithArgs("GA", 1).
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("tok-a"))
	mock.ExpectExec("UPDATE tokens SET email").
		WithArgs("a@x.com", sqlmock.AnyArg(), "tok-a").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	if _, err := s.Reserve(context.Background(), "GA", "a@x.com", 1); err == nil {
		t.Fatal("expected error when the guarded update misses")
	}
}

func TestReserve_Arguments(t *testing.T) {
	s, _ := newMockStore(t, time.Now())
	ctx := context.Background()

	if _, err := s.Reserve(ctx, "BOGUS", "a@x.com", 1); !errors.Is(err, model.ErrInvalidTokenType) {
		t.Errorf("invalid type: got %v", err)
	}
	if _, err := s.Reserve(ctx, "GA", "", 1); err == nil {
		t.Error("expected error for empty recipient")
	}
	if _, err := s.Reserve(ctx, "GA", "a@x.com", -1); err == nil {
		t.Error("expected error for negative count")
	}
	got, err := s.Reserve(ctx, "GA", "a@x.com", 0)
	if err != nil || len(got) != 0 {
		t.Errorf("Reserve(0) = %v, %v; want empty, nil", got, err)
	}
}

func TestInsertBatch_DuplicateRollsBack(t *testing.T) {
	s, mock := newMockStore(t, time.Now())

	expectBegin(mock)
	mock.ExpectExec("INSERT INTO tokens").
		WithArgs("tok-a", "GA", sqlmock.AnyArg(), sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tokens").
		WithArgs("tok-a", "GA", sqlmock.AnyArg(), sqlmock.AnyArg(), false).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	seq := func(yield func(model.Token, error) bool) {
		for range 2 {
			if !yield(model.Token{Value: "tok-a", Type: "GA"}, nil) {
				return
			}
		}
	}
	n, err := s.InsertBatch(context.Background(), seq)
	if !errors.Is(err, model.ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		t.Error("driver error should stay reachable through the wrap")
	}
	if n != 0 {
		t.Errorf("InsertBatch count = %d, want 0", n)
	}
}

func TestInsertBatch_SequenceErrorRollsBack(t *testing.T) {
	s, mock := newMockStore(t, time.Now())

	expectBegin(mock)
	mock.ExpectExec("INSERT INTO tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	bad := &model.InvalidRecordError{Line: 2, Reason: "too few fields"}
	seq := func(yield func(model.Token, error) bool) {
		if !yield(model.Token{Value: "tok-a", Type: "GA"}, nil) {
			return
		}
		yield(model.Token{}, bad)
	}
	if _, err := s.InsertBatch(context.Background(), seq); !errors.Is(err, model.ErrInvalidSentRecord) {
		t.Fatalf("expected ErrInvalidSentRecord, got %v", err)
	}
}

func TestMarkExportedAndFetch(t *testing.T) {
	s, mock := newMockStore(t, time.Now())

	expectBegin(mock)
	mock.ExpectQuery(`SELECT token, token_type, exported FROM tokens WHERE token_type = \$1 AND exported = \$2`).
		WithArgs("GA", false).
		WillReturnRows(sqlmock.NewRows([]string{"token", "token_type", "exported"}).
			AddRow("tok-a", "GA", false).
			AddRow("tok-b", "GA", false))
	mock.ExpectExec(`UPDATE tokens SET exported = \$1 WHERE token_type = \$2 AND exported = \$3`).
		WithArgs(true, "GA", false).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	var delivered int
	got, err := s.MarkExportedAndFetch(context.Background(), store.ExportQuery{
		Type:        "GA",
		SetExported: true,
		Deliver: func(tokens []model.Token) error {
			delivered = len(tokens)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Exported || got[1].Exported {
		t.Errorf("MarkExportedAndFetch = %+v, want 2 pre-flip rows", got)
	}
	if delivered != 2 {
		t.Errorf("delivered %d tokens, want 2", delivered)
	}
}

func TestMarkExportedAndFetch_DeliverFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t, time.Now())

	expectBegin(mock)
	mock.ExpectQuery("SELECT token, token_type, exported FROM tokens").
		WillReturnRows(sqlmock.NewRows([]string{"token", "token_type", "exported"}).AddRow("tok-a", "GA", false))
	mock.ExpectExec("UPDATE tokens SET exported").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.MarkExportedAndFetch(context.Background(), store.ExportQuery{
		Type:        "GA",
		SetExported: true,
		Deliver:     func([]model.Token) error { return errors.New("disk full") },
	})
	if err == nil {
		t.Fatal("expected deliver error")
	}
}

func TestMarkExportedAndFetch_Contradictory(t *testing.T) {
	s, _ := newMockStore(t, time.Now())
	_, err := s.MarkExportedAndFetch(context.Background(), store.ExportQuery{
		Type:        "GA",
		Exported:    true,
		SetExported: true,
	})
	if !errors.Is(err, model.ErrContradictoryExport) {
		t.Fatalf("expected ErrContradictoryExport, got %v", err)
	}
}

func TestQueryFind(t *testing.T) {
	s, mock := newMockStore(t, time.Now())
	mock.ExpectQuery(`SELECT token FROM tokens WHERE token_type = \$1 AND email = \$2`).
		WithArgs("VIP", "a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("tok-v"))

	got, err := s.Find(context.Background(), "VIP", "a@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "tok-v" {
		t.Errorf("Find = %v, want [tok-v]", got)
	}
}

func TestQueryStatistics(t *testing.T) {
	s, mock := newMockStore(t, time.Now())
	mock.ExpectQuery("SELECT token_type, email IS NOT NULL AS issued, exported, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"token_type", "issued", "exported", "count"}).
			AddRow("GA", false, false, 480).
			AddRow("GA", true, false, 20).
			AddRow("VIP", true, true, 3))

	stats, err := s.Statistics(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []model.Stat{
		{Type: "GA", Count: 480},
		{Type: "GA", Issued: true, Count: 20},
		{Type: "VIP", Issued: true, Exported: true, Count: 3},
	}
	if len(stats) != len(want) {
		t.Fatalf("got %d stats, want %d", len(stats), len(want))
	}
	for i := range want {
		if stats[i] != want[i] {
			t.Errorf("stats[%d] = %+v, want %+v", i, stats[i], want[i])
		}
	}
}
