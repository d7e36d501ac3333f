package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE classes the cart tables can raise.
const (
	pgUniqueViolation    = "23505"
	pgCheckViolation     = "23514"
	pgNotNullViolation   = "23502"
	pgNumericOutOfRange  = "22003"
	pgSerializationFail  = "40001"
	pgDeadlockDetected   = "40P01"
	pgInsufficientMemory = "53200"
)

// PGFault is the driver-neutral view of a postgres error. Both pgx (gorm's
// postgres driver) and lib/pq errors are recognised.
type PGFault struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

func pgFault(err error) (PGFault, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return PGFault{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return PGFault{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return PGFault{}, false
}

// FromDB turns a storage failure into a typed error. Constraint violations
// become client errors; everything else is a retryable storage error.
// Already typed errors pass through unchanged.
func FromDB(err error, msg string) error {
	if err == nil {
		return nil
	}
	if As(err) != nil {
		return err
	}
	fault, ok := pgFault(err)
	if !ok {
		return Wrap(CodeStorage, err, msg)
	}
	switch fault.Code {
	case pgUniqueViolation:
		return Wrap(CodeConflict, err, msg).WithDetails(map[string]any{"constraint": fault.Constraint})
	case pgCheckViolation, pgNotNullViolation, pgNumericOutOfRange:
		return Wrap(CodeValidation, err, msg).WithDetails(map[string]any{"constraint": fault.Constraint})
	case pgSerializationFail, pgDeadlockDetected, pgInsufficientMemory:
		return Wrap(CodeStorage, err, msg+" (transient)")
	default:
		return Wrap(CodeStorage, err, msg)
	}
}

// LogFields flattens err into structured log fields: the typed code, the
// unwrap chain and any postgres diagnostics.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	if te := As(err); te != nil {
		fields["error_code"] = te.Code()
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields["error_chain"] = chain

	if fault, ok := pgFault(err); ok {
		fields["pg_code"] = fault.Code
		fields["pg_constraint"] = fault.Constraint
		fields["pg_table"] = fault.Table
		fields["pg_column"] = fault.Column
		fields["pg_detail"] = fault.Detail
		fields["pg_message"] = fault.Message
	}
	return fields
}
