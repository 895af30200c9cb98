package drivers

import (
	// Register pgx's database/sql adapter under the "pgx" driver name so the
	// store can talk to PostgreSQL through the same database/sql surface it
	// uses for the embedded engines.
	_ "github.com/jackc/pgx/v5/stdlib"
)
