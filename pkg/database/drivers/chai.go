package drivers

import (
	"database/sql"
	"database/sql/driver"

	sqlite "modernc.org/sqlite"
)

// init wires up the "chai" driver name so callers can request it via
// database/sql.  We reuse the modernc SQLite backend because Chai stores
// data in SQLite-compatible files, and sharing the implementation keeps the
// build simple and CGO-free.
func init() {
	sql.Register("chai", newChaiDriver())
}

// newChaiDriver returns a driver.Driver backed by modernc SQLite.
// Using a helper keeps the registration logic explicit and keeps the
// initialization testable in isolation.
func newChaiDriver() driver.Driver {
	return &sqlite.Driver{}
}
