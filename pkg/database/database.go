// Package database persists the hiking catalogue: parks, routes, route
// points, images, and feedback.  Everything goes through database/sql so a
// single binary can serve from embedded SQLite or a shared PostgreSQL with
// the same SQL text, switching only placeholder syntax and column types.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"
)

// Database wraps the SQL connection together with the process-wide ID
// generator.  Row IDs are assigned by the application rather than the
// engine so bulk inserts stay portable across drivers that disagree about
// AUTOINCREMENT and RETURNING.
type Database struct {
	DB          *sql.DB
	Driver      string     // normalized driver name so SQL builders can stay declarative
	idGenerator chan int64 // channel for generating unique IDs
}

// Config holds the configuration details for opening the database.
type Config struct {
	DBType    string // driver name: "sqlite", "chai", "duckdb", or "pgx" (PostgreSQL)
	DBPath    string // file path for file-backed engines
	DBConn    string // raw DSN for network drivers, overrides host/port fields
	DBHost    string
	DBPort    int
	DBUser    string
	DBPass    string
	DBName    string
	PGSSLMode string
	Port      int // HTTP port, used in default database file naming
}

// normalizeDBType trims and lowercases driver names so downstream switch
// blocks do not miss engine-specific handling just because a caller passed
// mixed case or incidental whitespace.
func normalizeDBType(dbType string) string {
	return strings.ToLower(strings.TrimSpace(dbType))
}

// startIDGenerator launches a goroutine handing out sequential IDs over a
// channel.  No mutexes: "Don't communicate by sharing memory; share memory
// by communicating."
func startIDGenerator(initialID int64) chan int64 {
	idChannel := make(chan int64)
	go func(start int64) {
		currentID := start
		for {
			idChannel <- currentID
			currentID++
		}
	}(initialID)
	return idChannel
}

// NextID reserves a fresh row ID.
func (db *Database) NextID() int64 {
	return <-db.idGenerator
}

// NewDatabase opens the configured engine and tunes its connection pool.
// File-backed engines run in single-connection mode since they do not
// tolerate concurrent writers, while PostgreSQL keeps a small pool.
func NewDatabase(config Config) (*Database, error) {
	driverName := normalizeDBType(config.DBType)
	var dsn string

	switch driverName {
	case "sqlite", "chai":
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("hiking-trail-map-%d.%s", config.Port, driverName)
		}
	case "duckdb":
		// The file is created on first open.
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("hiking-trail-map-%d.duckdb", config.Port)
		}
	case "pgx":
		if strings.TrimSpace(config.DBConn) != "" {
			dsn = config.DBConn
		} else {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				config.DBUser, config.DBPass, config.DBHost, config.DBPort, config.DBName, config.PGSSLMode)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.DBType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %v", err)
	}

	switch driverName {
	case "sqlite", "chai", "duckdb":
		// One physical connection; no concurrent statements at DB layer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if driverName == "sqlite" {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := tuneSQLiteConnection(tuneCtx, db, log.Printf); err != nil {
				log.Printf("sqlite tuning skipped: %v", err)
			}
			cancel()
		}
	case "pgx":
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// Cheap liveness probe with timeout so we don't hang at startup.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("error connecting to the database: %v", err)
		}
	}

	log.Printf("Using database driver: %s with DSN: %s", driverName, dsn)

	return &Database{
		DB:     db,
		Driver: driverName,
	}, nil
}

// tuneSQLiteConnection applies WAL/synchronous/busy pragmas so uploads with
// thousands of points commit quickly without risking a half-written file.
func tuneSQLiteConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	type pragma struct {
		label     string
		query     string
		expectRow bool
	}

	steps := []pragma{
		{label: "journal_mode", query: "PRAGMA journal_mode=WAL;", expectRow: true},
		{label: "synchronous", query: "PRAGMA synchronous=NORMAL;"},
		{label: "temp_store", query: "PRAGMA temp_store=MEMORY;"},
		{label: "busy_timeout", query: "PRAGMA busy_timeout=5000;"},
	}

	for _, step := range steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if step.expectRow {
			var mode string
			if err := db.QueryRowContext(ctx, step.query).Scan(&mode); err != nil {
				return fmt.Errorf("apply %s: %w", step.label, err)
			}
			logf("SQLite tuning %s -> %s", step.label, mode)
			continue
		}

		if _, err := db.ExecContext(ctx, step.query); err != nil {
			return fmt.Errorf("apply %s: %w", step.label, err)
		}
		logf("SQLite tuning %s applied", step.label)
	}
	return nil
}

// InitSchema creates the required tables synchronously so the app can
// accept traffic immediately after start.  It also seeds the ID generator
// from the highest ID across tables; the generator is shared so every row
// in the catalogue gets a unique primary key.
func (db *Database) InitSchema() error {
	var schema string

	switch db.Driver {
	case "pgx":
		schema = `
CREATE TABLE IF NOT EXISTS parks (
  id          BIGINT PRIMARY KEY,
  parkName    TEXT,
  location    TEXT,
  description TEXT,
  imageURL    TEXT,
  latitude    DOUBLE PRECISION,
  longitude   DOUBLE PRECISION,
  createdAt   BIGINT,
  updatedAt   BIGINT,
  isDeleted   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS routes (
  id          BIGINT PRIMARY KEY,
  routeName   TEXT,
  parkID      BIGINT,
  description TEXT,
  difficulty  TEXT,
  distance    DOUBLE PRECISION,
  latitude    DOUBLE PRECISION,
  longitude   DOUBLE PRECISION,
  geojson     TEXT,
  createdAt   BIGINT,
  updatedAt   BIGINT,
  isDeleted   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS route_points (
  id          BIGINT PRIMARY KEY,
  routeID     BIGINT,
  latitude    DOUBLE PRECISION,
  longitude   DOUBLE PRECISION,
  elevation   DOUBLE PRECISION,
  pointTime   BIGINT,
  pointOrder  INTEGER,
  description TEXT,
  createdAt   BIGINT,
  isDeleted   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_route_points_route
  ON route_points (routeID, isDeleted, pointOrder);

CREATE TABLE IF NOT EXISTS route_images (
  id        BIGINT PRIMARY KEY,
  routeID   BIGINT,
  imageURL  TEXT,
  caption   TEXT,
  fileName  TEXT,
  filePath  TEXT,
  latitude  DOUBLE PRECISION,
  longitude DOUBLE PRECISION,
  createdAt BIGINT,
  updatedAt BIGINT,
  isDeleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS route_feedback (
  id            BIGINT PRIMARY KEY,
  routeID       BIGINT,
  rating        INTEGER,
  strenuousness INTEGER,
  skill         INTEGER,
  comments      TEXT,
  userName      TEXT,
  createdAt     BIGINT,
  updatedAt     BIGINT,
  isDeleted     INTEGER NOT NULL DEFAULT 0
);
`

	case "sqlite", "chai", "duckdb":
		// Portable side: explicit BIGINT PK, app-assigned, no sequences.
		schema = `
CREATE TABLE IF NOT EXISTS parks (
  id          BIGINT PRIMARY KEY,
  parkName    TEXT,
  location    TEXT,
  description TEXT,
  imageURL    TEXT,
  latitude    REAL,
  longitude   REAL,
  createdAt   BIGINT,
  updatedAt   BIGINT,
  isDeleted   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS routes (
  id          BIGINT PRIMARY KEY,
  routeName   TEXT,
  parkID      BIGINT,
  description TEXT,
  difficulty  TEXT,
  distance    REAL,
  latitude    REAL,
  longitude   REAL,
  geojson     TEXT,
  createdAt   BIGINT,
  updatedAt   BIGINT,
  isDeleted   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS route_points (
  id          BIGINT PRIMARY KEY,
  routeID     BIGINT,
  latitude    REAL,
  longitude   REAL,
  elevation   REAL,
  pointTime   BIGINT,
  pointOrder  INTEGER,
  description TEXT,
  createdAt   BIGINT,
  isDeleted   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_route_points_route
  ON route_points (routeID, isDeleted, pointOrder);

CREATE TABLE IF NOT EXISTS route_images (
  id        BIGINT PRIMARY KEY,
  routeID   BIGINT,
  imageURL  TEXT,
  caption   TEXT,
  fileName  TEXT,
  filePath  TEXT,
  latitude  REAL,
  longitude REAL,
  createdAt BIGINT,
  updatedAt BIGINT,
  isDeleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS route_feedback (
  id            BIGINT PRIMARY KEY,
  routeID       BIGINT,
  rating        INTEGER,
  strenuousness INTEGER,
  skill         INTEGER,
  comments      TEXT,
  userName      TEXT,
  createdAt     BIGINT,
  updatedAt     BIGINT,
  isDeleted     INTEGER NOT NULL DEFAULT 0
);
`

	default:
		return fmt.Errorf("unsupported database type: %s", db.Driver)
	}

	if _, err := db.DB.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	// Bootstrap the ID generator from the highest ID across all tables.
	// Errors are ignored to keep startup robust even when tables are new.
	initialID := int64(1)
	for _, table := range []string{"parks", "routes", "route_points", "route_images", "route_feedback"} {
		var maxID sql.NullInt64
		_ = db.DB.QueryRow(fmt.Sprintf(`SELECT MAX(id) FROM %s`, table)).Scan(&maxID)
		if maxID.Valid && maxID.Int64 >= initialID {
			initialID = maxID.Int64 + 1
		}
	}
	db.idGenerator = startIDGenerator(initialID)

	return nil
}

// newPlaceholderGenerator returns a closure that produces the correct
// placeholder syntax for the configured driver.  Using a generator keeps
// the SQL assembly readable even as the number of filters grows.
func newPlaceholderGenerator(driver string) func() string {
	if driver == "pgx" {
		counter := 0
		return func() string {
			counter++
			return fmt.Sprintf("$%d", counter)
		}
	}
	return func() string { return "?" }
}

// nullFloat converts an optional float into its sql.Null form for inserts.
func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// nullUnix converts an optional timestamp into a nullable unix-seconds column.
func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// floatPtr converts a scanned nullable column back into the optional form.
func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// unixPtr converts a scanned nullable unix column back into *time.Time.
func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
