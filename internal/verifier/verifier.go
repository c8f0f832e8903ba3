// Package verifier checks the structural integrity of a SQL record store.
package verifier

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/mapping"
	"github.com/dbsmedya/gocontacts/internal/sqlutil"
	"github.com/dbsmedya/gocontacts/internal/store"
)

// VerificationMethod defines how thoroughly the store is checked.
type VerificationMethod string

const (
	// MethodCount runs the counting checks only (fast)
	MethodCount VerificationMethod = "count"
	// MethodSHA256 also hashes every raw record (slower, yields a digest
	// that can be compared between stores)
	MethodSHA256 VerificationMethod = "sha256"
	// MethodSkip skips verification entirely
	MethodSkip VerificationMethod = "skip"
)

// Check names.
const (
	CheckOrphans      = "orphaned_raw_records"
	CheckUnknownTypes = "unknown_type_tags"
	CheckSingleValued = "duplicate_single_valued"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name         string
	Offending    int64
	Passed       bool
	ErrorMessage string
}

// VerifyStats contains overall verification statistics.
type VerifyStats struct {
	Method       VerificationMethod
	Checks       []CheckResult
	ChecksPassed int
	ChecksFailed int
	Contacts     int64
	RawRecords   int64
	TypeCounts   map[string]int64
	Digest       string
}

// Verifier runs integrity checks against the store tables.
type Verifier struct {
	db     *sql.DB
	table  *mapping.Table
	method VerificationMethod
	logger *logger.Logger
}

// NewVerifier creates a verifier over db.
func NewVerifier(db *sql.DB, method VerificationMethod, log *logger.Logger) (*Verifier, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if method == "" {
		method = MethodCount
	}
	switch method {
	case MethodCount, MethodSHA256, MethodSkip:
	default:
		return nil, fmt.Errorf("unsupported verification method: %s", method)
	}

	return &Verifier{
		db:     db,
		table:  mapping.Default(),
		method: method,
		logger: log.WithComponent("verifier"),
	}, nil
}

var q = sqlutil.QuoteIdentifier

// Verify runs every check. A failed check is reported in the stats and in
// the returned error; query failures abort verification.
func (v *Verifier) Verify(ctx context.Context) (*VerifyStats, error) {
	stats := &VerifyStats{Method: v.method, TypeCounts: map[string]int64{}}
	if v.method == MethodSkip {
		v.logger.Info("Verification SKIPPED (method=skip)")
		return stats, nil
	}

	if err := v.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", q(store.TableContacts))).Scan(&stats.Contacts); err != nil {
		return stats, fmt.Errorf("failed to count contacts: %w", err)
	}

	checks := []func(context.Context, *VerifyStats) (CheckResult, error){
		v.checkOrphans,
		v.checkTypeTags,
		v.checkSingleValued,
	}
	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("verification interrupted: %w", err)
		}
		res, err := check(ctx, stats)
		if err != nil {
			return stats, err
		}
		stats.Checks = append(stats.Checks, res)
		if res.Passed {
			stats.ChecksPassed++
			v.logger.Debugf("Check %s PASSED", res.Name)
		} else {
			stats.ChecksFailed++
			v.logger.Errorf("Check %s FAILED: %s", res.Name, res.ErrorMessage)
		}
	}

	if v.method == MethodSHA256 {
		digest, err := v.digest(ctx)
		if err != nil {
			return stats, err
		}
		stats.Digest = digest
	}

	v.logger.Infof("Verification complete: %d checks, %d passed, %d failed, %d raw records",
		len(stats.Checks), stats.ChecksPassed, stats.ChecksFailed, stats.RawRecords)

	if stats.ChecksFailed > 0 {
		return stats, fmt.Errorf("verification failed: %d checks had findings", stats.ChecksFailed)
	}
	return stats, nil
}

// checkOrphans counts raw records whose logical record is gone.
func (v *Verifier) checkOrphans(ctx context.Context, _ *VerifyStats) (CheckResult, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s r LEFT JOIN %s c ON c.%s = r.%s WHERE c.%s IS NULL",
		q(store.TableRawRecords), q(store.TableContacts), q("id"), q("contact_id"), q("id"))

	var n int64
	if err := v.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return CheckResult{}, fmt.Errorf("failed to count orphaned raw records: %w", err)
	}
	res := CheckResult{Name: CheckOrphans, Offending: n, Passed: n == 0}
	if n > 0 {
		res.ErrorMessage = fmt.Sprintf("%d raw records reference missing contacts", n)
	}
	return res, nil
}

// checkTypeTags counts raw records per type tag and flags tags the mapping
// table does not know.
func (v *Verifier) checkTypeTags(ctx context.Context, stats *VerifyStats) (CheckResult, error) {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s GROUP BY %s ORDER BY %s",
		q("type_tag"), q(store.TableRawRecords), q("type_tag"), q("type_tag"))

	rows, err := v.db.QueryContext(ctx, query)
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to count type tags: %w", err)
	}
	defer rows.Close()

	known := map[string]bool{}
	for _, tag := range v.table.StorageTypes() {
		known[tag] = true
	}

	var unknown []string
	var offending int64
	for rows.Next() {
		var tag string
		var n int64
		if err := rows.Scan(&tag, &n); err != nil {
			return CheckResult{}, fmt.Errorf("failed to scan type tag count: %w", err)
		}
		stats.TypeCounts[tag] = n
		stats.RawRecords += n
		if !known[tag] {
			unknown = append(unknown, tag)
			offending += n
		}
	}
	if err := rows.Err(); err != nil {
		return CheckResult{}, err
	}

	res := CheckResult{Name: CheckUnknownTypes, Offending: offending, Passed: len(unknown) == 0}
	if len(unknown) > 0 {
		res.ErrorMessage = fmt.Sprintf("%d raw records carry unknown type tags: %s", offending, strings.Join(unknown, ", "))
	}
	return res, nil
}

// singleValuedTypes returns the storage types that hold at most one raw
// record per contact.
func (v *Verifier) singleValuedTypes() []string {
	var out []string
	for _, tag := range v.table.StorageTypes() {
		single := true
		for _, m := range v.table.ByStorageType(tag) {
			if m.MultiValued || m.HasTypes() {
				single = false
				break
			}
		}
		if single {
			out = append(out, tag)
		}
	}
	return out
}

// checkSingleValued counts contacts holding more than one raw record of a
// single-valued storage type.
func (v *Verifier) checkSingleValued(ctx context.Context, _ *VerifyStats) (CheckResult, error) {
	tags := v.singleValuedTypes()
	res := CheckResult{Name: CheckSingleValued, Passed: true}
	if len(tags) == 0 {
		return res, nil
	}

	args := make([]interface{}, len(tags))
	for i, tag := range tags {
		args[i] = tag
	}
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT %s, %s FROM %s WHERE %s IN (%s) GROUP BY %s, %s HAVING COUNT(*) > 1) d",
		q("contact_id"), q("type_tag"), q(store.TableRawRecords), q("type_tag"), sqlutil.Placeholders(len(tags)),
		q("contact_id"), q("type_tag"))

	var n int64
	if err := v.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return CheckResult{}, fmt.Errorf("failed to count duplicate single-valued records: %w", err)
	}
	res.Offending = n
	res.Passed = n == 0
	if n > 0 {
		res.ErrorMessage = fmt.Sprintf("%d contact fields are stored more than once", n)
	}
	return res, nil
}

// digest hashes every raw record in id order.
func (v *Verifier) digest(ctx context.Context) (string, error) {
	cols := []string{q("id"), q("contact_id"), q("type_tag"), q("version"), q("is_primary"), q("is_super_primary")}
	for _, c := range mapping.DataColumns {
		cols = append(cols, q(c))
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), q(store.TableRawRecords), q("id"))

	rows, err := v.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to query raw records for digest: %w", err)
	}
	defer rows.Close()

	hasher := sha256.New()
	values := make([]sql.NullString, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("failed to scan raw record for digest: %w", err)
		}
		for i, val := range values {
			if i > 0 {
				hasher.Write([]byte{0x1f})
			}
			if val.Valid {
				hasher.Write([]byte(val.String))
			} else {
				hasher.Write([]byte{0x00})
			}
		}
		hasher.Write([]byte{0x1e})
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
