package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect captures the differences between the supported databases.
type dialect struct {
	name       string // config driver name and migrations subdirectory
	driverName string // database/sql driver name

	// beginExclusive opens a transaction that no other writer can interleave with.
	beginExclusive []string

	// placeholders rewrites "?" placeholders into the driver's native form.
	placeholders func(query string) string

	dsn             func(location string) string
	migrationDriver func(db *sql.DB) (database.Driver, error)
	uniqueViolation func(err error) bool
}

var sqliteDialect = dialect{
	name:           "sqlite",
	driverName:     "sqlite",
	beginExclusive: []string{"BEGIN EXCLUSIVE"},
	placeholders:   func(q string) string { return q },
	dsn: func(location string) string {
		sep := "?"
		if strings.Contains(location, "?") {
			sep = "&"
		}
		if !strings.HasPrefix(location, "file:") {
			location = "file:" + location
		}
		return location + sep + "_pragma=busy_timeout(5000)"
	},
	migrationDriver: func(db *sql.DB) (database.Driver, error) {
		return migratesqlite.WithInstance(db, &migratesqlite.Config{})
	},
	uniqueViolation: func(err error) bool {
		var sqlErr *sqlite.Error
		if !errors.As(err, &sqlErr) {
			return false
		}
		switch sqlErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
		return sqlErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
			strings.Contains(sqlErr.Error(), "UNIQUE constraint failed")
	},
}

var postgresDialect = dialect{
	name:       "postgres",
	driverName: "postgres",
	beginExclusive: []string{
		"BEGIN",
		"LOCK TABLE tokens IN EXCLUSIVE MODE",
	},
	placeholders: numberPlaceholders,
	dsn:          func(location string) string { return location },
	migrationDriver: func(db *sql.DB) (database.Driver, error) {
		return migratepg.WithInstance(db, &migratepg.Config{})
	},
	uniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case sqliteDialect.name:
		return sqliteDialect, nil
	case postgresDialect.name:
		return postgresDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// numberPlaceholders rewrites each "?" into $1, $2, ... in order.
func numberPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
