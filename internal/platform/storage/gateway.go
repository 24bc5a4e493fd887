// Package storage is the single gateway between the engine and the relational store.
// Every call is bounded by a timeout and fails closed when the store does not answer.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

var (
	// ErrUnavailable wraps every infrastructure failure surfaced by the gateway.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrDuplicate reports a unique constraint violation.
	ErrDuplicate = errors.New("duplicate key")
)

// DefaultTimeout bounds a single gateway call when none is configured.
const DefaultTimeout = 3 * time.Second

// Gateway executes parameterised statements against the store.
type Gateway interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
	// Execute runs a statement and returns the last inserted id when the driver reports one.
	Execute(ctx context.Context, sql string, args ...any) (int64, error)
	Insert(ctx context.Context, table string, fields map[string]any) (int64, error)
	Update(ctx context.Context, table string, id int64, fields map[string]any) (bool, error)
	Delete(ctx context.Context, table string, id int64) (bool, error)
	// Transaction runs fn against a gateway bound to one transaction. Calls made inside fn
	// must go through the supplied gateway.
	Transaction(ctx context.Context, fn func(tx Gateway) error) error
}

// GormGateway implements Gateway over a GORM connection.
type GormGateway struct {
	db      *gorm.DB
	timeout time.Duration
	inTx    bool
}

var _ Gateway = (*GormGateway)(nil)

// Option configures a GormGateway.
type Option func(*GormGateway)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *GormGateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGormGateway wraps db. Caller manages the DB lifecycle.
func NewGormGateway(db *gorm.DB, opts ...Option) *GormGateway {
	g := &GormGateway{db: db, timeout: DefaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Query returns every row produced by the statement.
func (g *GormGateway) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	if err := g.ensureDB(); err != nil {
		return nil, err
	}
	ctx, cancel := g.bound(ctx)
	defer cancel()
	var raw []map[string]any
	if err := g.db.WithContext(ctx).Raw(sql, args...).Scan(&raw).Error; err != nil {
		return nil, wrap("query", err)
	}
	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, Row(r))
	}
	return rows, nil
}

// Execute runs a statement. For drivers that cannot report a last insert id the
// number of affected rows is returned instead.
func (g *GormGateway) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := g.ensureDB(); err != nil {
		return 0, err
	}
	ctx, cancel := g.bound(ctx)
	defer cancel()
	pool := g.db.Statement.ConnPool
	if pool == nil {
		pool = g.db.ConnPool
	}
	result, err := pool.ExecContext(ctx, rebind(g.db.Dialector.Name(), sql), args...)
	if err != nil {
		return 0, wrap("execute", err)
	}
	// sqlite reports the connection's last rowid even for UPDATE, so only trust it on INSERT.
	if isInsert(sql) {
		if id, err := result.LastInsertId(); err == nil && id > 0 {
			return id, nil
		}
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// Insert writes one row and returns its generated id.
func (g *GormGateway) Insert(ctx context.Context, table string, fields map[string]any) (int64, error) {
	if err := g.ensureDB(); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, fmt.Errorf("insert into %s: no fields", table)
	}
	cols, vals := sortedFields(fields)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)

	ctx, cancel := g.bound(ctx)
	defer cancel()
	db := g.db.WithContext(ctx)
	if g.db.Dialector.Name() == "mysql" {
		var id int64
		err := g.withConn(db, func(conn *gorm.DB) error {
			if err := conn.Exec(stmt, vals...).Error; err != nil {
				return err
			}
			return conn.Raw("SELECT LAST_INSERT_ID()").Scan(&id).Error
		})
		if err != nil {
			return 0, wrap("insert "+table, err)
		}
		return id, nil
	}
	var id int64
	if err := db.Raw(stmt+" RETURNING id", vals...).Scan(&id).Error; err != nil {
		return 0, wrap("insert "+table, err)
	}
	return id, nil
}

// Update patches the row with the given id. It reports false when no row matched.
func (g *GormGateway) Update(ctx context.Context, table string, id int64, fields map[string]any) (bool, error) {
	if err := g.ensureDB(); err != nil {
		return false, err
	}
	if len(fields) == 0 {
		return false, fmt.Errorf("update %s: no fields", table)
	}
	ctx, cancel := g.bound(ctx)
	defer cancel()
	result := g.db.WithContext(ctx).Table(table).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return false, wrap("update "+table, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete removes the row with the given id. It reports false when no row matched.
func (g *GormGateway) Delete(ctx context.Context, table string, id int64) (bool, error) {
	if err := g.ensureDB(); err != nil {
		return false, err
	}
	ctx, cancel := g.bound(ctx)
	defer cancel()
	result := g.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if result.Error != nil {
		return false, wrap("delete "+table, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Transaction runs fn inside a database transaction. Nested calls reuse the outer one.
func (g *GormGateway) Transaction(ctx context.Context, fn func(tx Gateway) error) error {
	if err := g.ensureDB(); err != nil {
		return err
	}
	if g.inTx {
		return fn(g)
	}
	ctx, cancel := g.bound(ctx)
	defer cancel()
	var fnErr error
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&GormGateway{db: tx, timeout: g.timeout, inTx: true})
		return fnErr
	})
	if err == nil {
		return nil
	}
	// Errors raised by fn pass through untouched; only begin/commit failures are wrapped.
	if fnErr != nil || isGatewayError(err) {
		return err
	}
	return wrap("transaction", err)
}

func (g *GormGateway) withConn(db *gorm.DB, fn func(conn *gorm.DB) error) error {
	if g.inTx {
		return fn(db)
	}
	return db.Connection(fn)
}

// bound applies the per-call timeout. Inside a transaction the outer deadline already applies.
func (g *GormGateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if g.inTx {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *GormGateway) ensureDB() error {
	if g == nil || g.db == nil {
		return fmt.Errorf("%w: gateway not configured", ErrUnavailable)
	}
	return nil
}

// rebind rewrites '?' placeholders into the positional form postgres expects.
func rebind(dialect, sql string) string {
	if dialect != "postgres" || !strings.Contains(sql, "?") {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isInsert(sql string) bool {
	trimmed := strings.TrimSpace(sql)
	return len(trimmed) >= 6 && strings.EqualFold(trimmed[:6], "insert")
}

func sortedFields(fields map[string]any) ([]string, []any) {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	vals := make([]any, 0, len(cols))
	for _, col := range cols {
		vals = append(vals, fields[col])
	}
	return cols, vals
}

// wrap classifies driver errors: unique violations become ErrDuplicate, everything else
// ErrUnavailable.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDuplicate(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func isGatewayError(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrDuplicate)
}

// IsDuplicate reports whether err is a unique constraint violation from any supported driver.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
