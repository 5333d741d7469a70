package persistence

import "database/sql"

// Executor abstracts *sql.DB and *sql.Tx so repository writes can
// participate in a caller-owned transaction.
type Executor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}
