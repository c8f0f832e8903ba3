package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbsmedya/gocontacts/internal/mapping"
	"github.com/dbsmedya/gocontacts/internal/sqlutil"
)

// Dialect selects SQL syntax differences between backends.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// Table names.
const (
	TableContacts   = "contacts"
	TableRawRecords = "raw_records"
	TableGroups     = "contact_groups"
)

// SchemaStatements returns the DDL creating all tables for d.
func SchemaStatements(d Dialect) []string {
	var id, text, key, engine string
	switch d {
	case DialectMySQL:
		id = "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
		text = "VARCHAR(255) NOT NULL DEFAULT ''"
		key = "VARCHAR(64) NOT NULL"
		engine = " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	default:
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
		text = "TEXT NOT NULL DEFAULT ''"
		key = "TEXT NOT NULL"
	}

	q := sqlutil.QuoteIdentifier

	contacts := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s %s, %s %s, %s %s, %s TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)%s",
		q(TableContacts),
		q("id"), id,
		q("account_name"), text,
		q("account_type"), text,
		q("created_at"),
		engine,
	)

	var raw strings.Builder
	fmt.Fprintf(&raw, "CREATE TABLE IF NOT EXISTS %s (%s %s, %s BIGINT NOT NULL, %s %s, %s BIGINT NOT NULL DEFAULT 1, %s INTEGER NOT NULL DEFAULT 0, %s INTEGER NOT NULL DEFAULT 0",
		q(TableRawRecords),
		q("id"), id,
		q("contact_id"),
		q("type_tag"), key,
		q("version"),
		q(mapping.ColIsPrimary),
		q(mapping.ColIsSuperPrimary),
	)
	for _, c := range mapping.DataColumns {
		fmt.Fprintf(&raw, ", %s TEXT NULL", q(c))
	}
	if d == DialectMySQL {
		fmt.Fprintf(&raw, ", KEY %s (%s, %s)", q("idx_raw_records_contact"), q("contact_id"), q("type_tag"))
	}
	raw.WriteString(")")
	raw.WriteString(engine)

	groups := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s %s, %s %s, %s %s, %s %s, %s INTEGER NOT NULL DEFAULT 0, %s INTEGER NOT NULL DEFAULT 1)%s",
		q(TableGroups),
		q("id"), id,
		q("title"), text,
		q("account_name"), text,
		q("account_type"), text,
		q("deleted"),
		q("visible"),
		engine,
	)

	stmts := []string{contacts, raw.String(), groups}
	if d == DialectSQLite {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
			q("idx_raw_records_contact"), q(TableRawRecords), q("contact_id"), q("type_tag")))
	}
	return stmts
}

// EnsureSchema creates missing tables.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range SchemaStatements(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	s.logger.Debugf("Schema ready (%s)", s.dialect)
	return nil
}
