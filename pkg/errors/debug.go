package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const sqliteUniquePrefix = "UNIQUE constraint failed: "

// ErrorDump is the log-friendly view of an error chain, including whatever
// the database driver reported.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`

	SQLiteConstraint string `json:"sqlite_constraint,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	switch {
	case d.fromPgx(err), d.fromPq(err):
	default:
		// sqlite only names the failing columns in the message
		if idx := strings.Index(d.TopMessage, sqliteUniquePrefix); idx >= 0 {
			d.SQLiteConstraint = strings.TrimSpace(d.TopMessage[idx+len(sqliteUniquePrefix):])
		}
	}
	return d
}

func (d *ErrorDump) fromPgx(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	d.PGCode, d.PGConstraint, d.PGTable = pgErr.Code, pgErr.ConstraintName, pgErr.TableName
	d.PGColumn, d.PGDetail, d.PGMessage = pgErr.ColumnName, pgErr.Detail, pgErr.Message
	return true
}

func (d *ErrorDump) fromPq(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	d.PGCode, d.PGConstraint, d.PGTable = string(pqErr.Code), pqErr.Constraint, pqErr.Table
	d.PGColumn, d.PGDetail, d.PGMessage = pqErr.Column, pqErr.Detail, pqErr.Message
	return true
}

// Fields flattens the dump into log fields, leaving out empty driver values.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	for key, value := range map[string]string{
		"pg_code":           d.PGCode,
		"pg_constraint":     d.PGConstraint,
		"pg_table":          d.PGTable,
		"pg_column":         d.PGColumn,
		"pg_detail":         d.PGDetail,
		"pg_message":        d.PGMessage,
		"sqlite_constraint": d.SQLiteConstraint,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
