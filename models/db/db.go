// Package db holds the shared database handle and the interface for
// establishing it.
package db

import (
	"database/sql"
	"sync"
)

var mu sync.Mutex

// Conn is the connection shared by every model package's prepared
// statements. setup.DB assigns it once per process.
var Conn *sql.DB

// A Connector establishes a connection to a Postgres database with the given
// number of connections, and stores the connection in conn.
type Connector interface {
	Connect(conn *sql.DB, dbConns int) error
}

// Connected reports whether a connection to the database exists.
func Connected() bool {
	mu.Lock()
	defer mu.Unlock()
	return Conn != nil
}
