// store.go holds the query helpers shared by every repository and the Store
// aggregate that the storage drivers embed. Queries are written with ? bind
// variables and rebound for the connection's dialect, so one repository layer
// serves both postgres and sqlite.
package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx"
)

const (
	// DefaultListLimit is used when a list filter has no limit.
	DefaultListLimit = 50
	// MaxListLimit caps any list filter limit.
	MaxListLimit = 1000
)

// ErrorMapper converts driver specific errors (unique violations, broken
// connections) into the storage package's typed errors.
type ErrorMapper func(error) error

func identityMapper(err error) error { return err }

// querier runs rebound queries against a database or transaction.
type querier struct {
	db     sqlx.ExtContext
	mapErr ErrorMapper
}

func newQuerier(db sqlx.ExtContext, mapErr ErrorMapper) querier {
	if mapErr == nil {
		mapErr = identityMapper
	}
	return querier{db: db, mapErr: mapErr}
}

// bind prepares args for a ? query. Typed nil pointers such as a nil
// *uuid.UUID become untyped nil so they are written as NULL; slice arguments
// are expanded into IN (?) lists. Byte slices and valuers are values.
func bind(query string, args []interface{}) (string, []interface{}, error) {
	bound := make([]interface{}, len(args))
	expand := false
	for i, arg := range args {
		bound[i] = arg
		v := reflect.ValueOf(arg)
		switch v.Kind() {
		case reflect.Ptr:
			if v.IsNil() {
				bound[i] = nil
			}
		case reflect.Slice:
			if _, ok := arg.(driver.Valuer); !ok && v.Type().Elem().Kind() != reflect.Uint8 {
				expand = true
			}
		}
	}
	if !expand {
		return query, bound, nil
	}
	return sqlx.In(query, bound...)
}

// get scans one row into dest. It returns false when no row matched.
func (q querier) get(ctx context.Context, dest interface{}, query string, args ...interface{}) (bool, error) {
	query, args, err := bind(query, args)
	if err != nil {
		return false, err
	}
	err = sqlx.GetContext(ctx, q.db, dest, q.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, q.mapErr(err)
	}
	return true, nil
}

func (q querier) sel(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	query, args, err := bind(query, args)
	if err != nil {
		return err
	}
	if err := sqlx.SelectContext(ctx, q.db, dest, q.db.Rebind(query), args...); err != nil {
		return q.mapErr(err)
	}
	return nil
}

// exec runs a statement and returns the number of affected rows.
func (q querier) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	query, args, err := bind(query, args)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, q.db.Rebind(query), args...)
	if err != nil {
		return 0, q.mapErr(err)
	}
	return res.RowsAffected()
}

// where accumulates AND-ed filter clauses.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, args ...interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// setter accumulates UPDATE assignments.
type setter struct {
	assignments []string
	args        []interface{}
}

func (s *setter) set(column string, value interface{}) {
	s.assignments = append(s.assignments, column+" = ?")
	s.args = append(s.args, value)
}

func (s *setter) String() string {
	return strings.Join(s.assignments, ", ")
}

func listLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Store aggregates the entity repositories over one connection or
// transaction. Storage drivers embed it to implement the entity half of
// storage.Driver.
type Store struct {
	*AuditRepository
	*CsrfRepository
	*KeyRepository
	*ServiceRepository
	*UserRepository
}

// NewStore creates a Store over db, which may be a *sqlx.DB or a *sqlx.Tx.
func NewStore(db sqlx.ExtContext, mapErr ErrorMapper) *Store {
	q := newQuerier(db, mapErr)
	return &Store{
		AuditRepository:   &AuditRepository{q},
		CsrfRepository:    &CsrfRepository{q},
		KeyRepository:     &KeyRepository{q},
		ServiceRepository: &ServiceRepository{q},
		UserRepository:    &UserRepository{q},
	}
}
