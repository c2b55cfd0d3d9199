package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alfredjeanlab/contokens/internal/model"
)

// executor is the interface satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryInsertToken(ctx context.Context, db executor, d dialect, t model.Token) error {
	_, err := db.ExecContext(ctx, d.placeholders(`
		INSERT INTO tokens (token, token_type, email, used_at, exported)
		VALUES (?, ?, ?, ?, ?)`),
		t.Value,
		t.Type,
		nullString(t.Recipient),
		nullTimePtr(t.IssuedAt),
		t.Exported,
	)
	return err
}

func queryCountAvailable(ctx context.Context, db executor, d dialect, tokenType string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, d.placeholders(
		`SELECT COUNT(*) FROM tokens WHERE token_type = ? AND email IS NULL`),
		tokenType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count available tokens: %w", err)
	}
	return n, nil
}

// querySelectAvailable returns up to limit unissued tokens in storage order.
func querySelectAvailable(ctx context.Context, db executor, d dialect, tokenType string, limit int) ([]string, error) {
	rows, err := db.QueryContext(ctx, d.placeholders(
		`SELECT token FROM tokens WHERE token_type = ? AND email IS NULL LIMIT ?`),
		tokenType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select available tokens: %w", err)
	}
	return scanValues(rows)
}

// queryIssueToken binds one token to a recipient. The email guard makes a
// second issue of the same token affect no rows, which is reported as an error.
func queryIssueToken(ctx context.Context, db executor, d dialect, token, recipient string, at time.Time) error {
	res, err := db.ExecContext(ctx, d.placeholders(
		`UPDATE tokens SET email = ?, used_at = ? WHERE token = ? AND email IS NULL`),
		recipient, at, token,
	)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("issue token %s: already issued", token)
	}
	return nil
}

func queryFind(ctx context.Context, db executor, d dialect, tokenType, recipient string) ([]string, error) {
	rows, err := db.QueryContext(ctx, d.placeholders(
		`SELECT token FROM tokens WHERE token_type = ? AND email = ?`),
		tokenType, recipient,
	)
	if err != nil {
		return nil, fmt.Errorf("find tokens: %w", err)
	}
	return scanValues(rows)
}

func querySelectByExport(ctx context.Context, db executor, d dialect, tokenType string, exported bool) ([]model.Token, error) {
	rows, err := db.QueryContext(ctx, d.placeholders(
		`SELECT token, token_type, exported FROM tokens WHERE token_type = ? AND exported = ?`),
		tokenType, exported,
	)
	if err != nil {
		return nil, fmt.Errorf("select tokens for export: %w", err)
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		var t model.Token
		if err := rows.Scan(&t.Value, &t.Type, &t.Exported); err != nil {
			return nil, fmt.Errorf("scan tokens: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

func queryMarkExported(ctx context.Context, db executor, d dialect, tokenType string) (int64, error) {
	res, err := db.ExecContext(ctx, d.placeholders(
		`UPDATE tokens SET exported = ? WHERE token_type = ? AND exported = ?`),
		true, tokenType, false,
	)
	if err != nil {
		return 0, fmt.Errorf("mark tokens exported: %w", err)
	}
	return res.RowsAffected()
}

func queryStatistics(ctx context.Context, db executor) ([]model.Stat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT token_type, email IS NOT NULL AS issued, exported, COUNT(*)
		FROM tokens
		GROUP BY token_type, issued, exported
		ORDER BY token_type, issued, exported`)
	if err != nil {
		return nil, fmt.Errorf("token statistics: %w", err)
	}
	defer rows.Close()

	var stats []model.Stat
	for rows.Next() {
		var s model.Stat
		if err := rows.Scan(&s.Type, &s.Issued, &s.Exported, &s.Count); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statistics: %w", err)
	}
	return stats, nil
}
