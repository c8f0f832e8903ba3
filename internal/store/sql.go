package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/mapping"
	"github.com/dbsmedya/gocontacts/internal/sqlutil"
	"github.com/dbsmedya/gocontacts/internal/types"
)

// SQLStore is a RecordStore over MySQL or SQLite. Every batch runs in one
// transaction.
type SQLStore struct {
	db             *sql.DB
	dialect        Dialect
	defaultAccount Account
	logger         *logger.Logger

	mu      sync.RWMutex
	onWrite func()
}

// NewSQLStore wraps an open database. The store owns db from here on.
func NewSQLStore(db *sql.DB, dialect Dialect, defaultAccount Account, log *logger.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	switch dialect {
	case DialectMySQL, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &SQLStore{
		db:             db,
		dialect:        dialect,
		defaultAccount: defaultAccount,
		logger:         log.WithComponent("store"),
	}, nil
}

// DB returns the underlying database handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// SetOnWrite registers fn to run after every committed write.
func (s *SQLStore) SetOnWrite(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = fn
}

func (s *SQLStore) notify() {
	s.mu.RLock()
	fn := s.onWrite
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

var q = sqlutil.QuoteIdentifier

var rawColumns = func() []string {
	cols := []string{"id", "contact_id", "type_tag", "version", mapping.ColIsPrimary, mapping.ColIsSuperPrimary}
	return append(cols, mapping.DataColumns...)
}()

func rawSelectList() string {
	list := ""
	for i, c := range rawColumns {
		if i > 0 {
			list += ", "
		}
		list += q(c)
	}
	return list
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func contactExists(ctx context.Context, db queryer, id int64) (bool, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", q(TableContacts), q("id"))
	if err := db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up logical record %d: %w", id, err)
	}
	return n > 0, nil
}

// HasLogicalRecord implements Reader.
func (s *SQLStore) HasLogicalRecord(ctx context.Context, id int64) (bool, error) {
	return contactExists(ctx, s.db, id)
}

// LogicalIDs implements Reader.
func (s *SQLStore) LogicalIDs(ctx context.Context) (*types.IDSet, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", q("id"), q(TableContacts)))
	if err != nil {
		return nil, fmt.Errorf("failed to query logical ids: %w", err)
	}
	defer rows.Close()

	ids := types.NewIDSet()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan logical id: %w", err)
		}
		ids.Add(id)
	}
	return ids, rows.Err()
}

// Snapshot implements Reader. Both reads share one transaction.
func (s *SQLStore) Snapshot(ctx context.Context) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	snap := Snapshot{IDs: types.NewIDSet()}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", q("id"), q(TableContacts)))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query logical ids: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("failed to scan logical id: %w", err)
		}
		snap.IDs.Add(id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	rows, err = tx.QueryContext(ctx, fmt.Sprintf("SELECT %s, %s, %s FROM %s ORDER BY %s",
		q("id"), q("contact_id"), q("version"), q(TableRawRecords), q("id")))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query raw records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st Stamp
		if err := rows.Scan(&st.RawID, &st.LogicalID, &st.Version); err != nil {
			return Snapshot{}, fmt.Errorf("failed to scan raw record: %w", err)
		}
		snap.Stamps = append(snap.Stamps, st)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to finish snapshot: %w", err)
	}
	return snap, nil
}

// Records implements Reader.
func (s *SQLStore) Records(ctx context.Context, id int64) ([]RawRecord, error) {
	ok, err := contactExists(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("logical record %d: %w", id, ErrNotFound)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s",
		rawSelectList(), q(TableRawRecords), q("contact_id"), q("id"))
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw records of %d: %w", id, err)
	}
	defer rows.Close()

	var out []RawRecord
	for rows.Next() {
		r, err := scanRaw(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRaw(rows *sql.Rows) (RawRecord, error) {
	var r RawRecord
	var primary, superPrimary int64
	data := make([]sql.NullString, len(mapping.DataColumns))

	dest := []interface{}{&r.ID, &r.LogicalID, &r.StorageType, &r.Version, &primary, &superPrimary}
	for i := range data {
		dest = append(dest, &data[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return RawRecord{}, fmt.Errorf("failed to scan raw record: %w", err)
	}

	r.IsPrimary = primary != 0
	r.IsSuperPrimary = superPrimary != 0
	for i, d := range data {
		r.Data[i] = d.String
	}
	return r, nil
}

// Account implements Reader.
func (s *SQLStore) Account(ctx context.Context, id int64) (Account, error) {
	var acc Account
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ?",
		q("account_name"), q("account_type"), q(TableContacts), q("id"))
	err := s.db.QueryRowContext(ctx, query, id).Scan(&acc.Name, &acc.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("logical record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to read account of %d: %w", id, err)
	}
	return acc, nil
}

// Apply implements Writer. The batch is committed only if every operation
// succeeds; otherwise the transaction is rolled back.
func (s *SQLStore) Apply(ctx context.Context, ops []Operation) (ApplyResult, error) {
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return ApplyResult{}, fmt.Errorf("operation %d (%s): %w", i, op.Kind, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if tx != nil {
			s.logger.Warn("Rolling back batch due to error or panic")
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Errorf("Failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	result := ApplyResult{Created: make(map[int]int64)}
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return ApplyResult{}, fmt.Errorf("batch interrupted: %w", err)
		}
		if err := s.applyOne(ctx, tx, i, op, &result); err != nil {
			return ApplyResult{}, fmt.Errorf("operation %d (%s): %w", i, op.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ApplyResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.Debugf("Applied batch of %d operations (%d raw inserts)", len(ops), len(result.RawIDs))
	s.notify()
	return result, nil
}

func (s *SQLStore) applyOne(ctx context.Context, tx *sql.Tx, index int, op Operation, result *ApplyResult) error {
	switch op.Kind {
	case OpCreateLogical:
		acc := s.defaultAccount
		if op.Account != nil {
			acc = *op.Account
		}
		query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)",
			q(TableContacts), q("account_name"), q("account_type"))
		res, err := tx.ExecContext(ctx, query, acc.Name, acc.Type)
		if err != nil {
			return fmt.Errorf("failed to create logical record: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read logical record id: %w", err)
		}
		result.Created[index] = id
		return nil

	case OpInsertRaw:
		parent, err := op.Parent.resolve(result.Created)
		if err != nil {
			return err
		}
		if !op.Parent.IsBackRef() {
			ok, err := contactExists(ctx, tx, parent)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("logical record %d: %w", parent, ErrNotFound)
			}
		}
		id, err := insertRaw(ctx, tx, parent, op.StorageType, op.Columns)
		if err != nil {
			return err
		}
		result.RawIDs = append(result.RawIDs, id)
		return nil

	case OpUpdateRaw:
		sel := op.Selector
		ok, err := contactExists(ctx, tx, sel.LogicalID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("logical record %d: %w", sel.LogicalID, ErrNotFound)
		}

		names := op.Columns.Names()
		quoted, err := quoteColumns(names)
		if err != nil {
			return err
		}
		set := ""
		args := make([]interface{}, 0, len(names)+3)
		for i, n := range names {
			set += fmt.Sprintf("%s = ?, ", quoted[i])
			args = append(args, op.Columns.Text(n))
		}
		set += fmt.Sprintf("%s = %s + 1", q("version"), q("version"))

		where := fmt.Sprintf("%s = ? AND %s = ?", q("contact_id"), q("type_tag"))
		args = append(args, sel.LogicalID, sel.StorageType)
		if sel.HasSubType() {
			col, err := sqlutil.QuoteIdentifierSafe(sel.SubTypeColumn)
			if err != nil {
				return err
			}
			where += fmt.Sprintf(" AND %s = ?", col)
			args = append(args, FormatValue(sel.SubTypeCode))
		}

		res, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE %s", q(TableRawRecords), set, where), args...)
		if err != nil {
			return fmt.Errorf("failed to update raw records: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 && op.Upsert {
			id, err := insertRaw(ctx, tx, sel.LogicalID, sel.StorageType, op.upsertColumns())
			if err != nil {
				return err
			}
			result.RawIDs = append(result.RawIDs, id)
		}
		return nil

	case OpDeleteRawByType:
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?",
			q(TableRawRecords), q("contact_id"), q("type_tag"))
		if _, err := tx.ExecContext(ctx, query, op.LogicalID, op.StorageType); err != nil {
			return fmt.Errorf("failed to delete raw records: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown operation kind %d", int(op.Kind))
}

// quoteColumns quotes caller-supplied column names, rejecting anything that
// is not a plain identifier.
func quoteColumns(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		quoted, err := sqlutil.QuoteIdentifierSafe(n)
		if err != nil {
			return nil, err
		}
		out[i] = quoted
	}
	return out, nil
}

func insertRaw(ctx context.Context, tx *sql.Tx, parent int64, storageType string, cols Columns) (int64, error) {
	names := cols.Names()
	quoted, err := quoteColumns(names)
	if err != nil {
		return 0, err
	}
	list := fmt.Sprintf("%s, %s, %s", q("contact_id"), q("type_tag"), q("version"))
	args := []interface{}{parent, storageType, 1}
	for i, n := range names {
		list += ", " + quoted[i]
		args = append(args, cols.Text(n))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", q(TableRawRecords), list, sqlutil.Placeholders(len(args)))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert raw record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read raw record id: %w", err)
	}
	return id, nil
}

// DeleteLogicalRecord implements Writer.
func (s *SQLStore) DeleteLogicalRecord(ctx context.Context, id int64) error {
	_, err := s.DeleteLogicalRecords(ctx, []int64{id})
	return err
}

// DeleteLogicalRecords deletes logical records with their raw records in
// one transaction and returns how many logical records were removed.
// Missing ids are ignored.
func (s *SQLStore) DeleteLogicalRecords(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	in := sqlutil.Placeholders(len(ids))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Errorf("Failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	// Children first
	rawQuery := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", q(TableRawRecords), q("contact_id"), in)
	if _, err := tx.ExecContext(ctx, rawQuery, args...); err != nil {
		return 0, fmt.Errorf("failed to delete raw records: %w", err)
	}

	contactQuery := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", q(TableContacts), q("id"), in)
	res, err := tx.ExecContext(ctx, contactQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete logical records: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.Debugf("Deleted %d logical records", deleted)
	s.notify()
	return deleted, nil
}

// Groups implements GroupStore.
func (s *SQLStore) Groups(ctx context.Context) ([]Group, error) {
	query := fmt.Sprintf("SELECT %s, %s, %s, %s, %s, %s FROM %s ORDER BY %s",
		q("id"), q("title"), q("account_name"), q("account_type"), q("deleted"), q("visible"),
		q(TableGroups), q("id"))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		var deleted, visible int64
		if err := rows.Scan(&g.ID, &g.Title, &g.Account.Name, &g.Account.Type, &deleted, &visible); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.Deleted = deleted != 0
		g.Visible = visible != 0
		out = append(out, g)
	}
	return out, rows.Err()
}

// Group implements GroupStore.
func (s *SQLStore) Group(ctx context.Context, id int64) (Group, error) {
	query := fmt.Sprintf("SELECT %s, %s, %s, %s, %s, %s FROM %s WHERE %s = ?",
		q("id"), q("title"), q("account_name"), q("account_type"), q("deleted"), q("visible"),
		q(TableGroups), q("id"))

	var g Group
	var deleted, visible int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Title, &g.Account.Name, &g.Account.Type, &deleted, &visible)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Group{}, fmt.Errorf("failed to read group %d: %w", id, err)
	}
	g.Deleted = deleted != 0
	g.Visible = visible != 0
	return g, nil
}

// CreateGroup implements GroupStore.
func (s *SQLStore) CreateGroup(ctx context.Context, title string, account Account) (int64, error) {
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s, %s) VALUES (?, ?, ?, 0, 1)",
		q(TableGroups), q("title"), q("account_name"), q("account_type"), q("deleted"), q("visible"))
	res, err := s.db.ExecContext(ctx, query, title, account.Name, account.Type)
	if err != nil {
		return 0, fmt.Errorf("failed to create group %q: %w", title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read group id: %w", err)
	}
	s.notify()
	return id, nil
}

// Close implements RecordStore.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
