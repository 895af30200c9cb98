package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// =====================
// Route point store
// =====================

// PointsByRoute returns the live points of a route sorted by their
// position in the track.  The HTTP layer reuses the same rows for the
// GeoJSON cache, the GPX download, and the upload confirmation, so the
// ordering here is the one ordering the whole system sees.
func (db *Database) PointsByRoute(ctx context.Context, routeID int64) ([]RoutePoint, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`SELECT id, routeID, latitude, longitude, elevation, pointTime, pointOrder,
       COALESCE(description, ''), createdAt
FROM route_points
WHERE routeID = %s AND isDeleted = 0
ORDER BY pointOrder ASC`, ph())

	rows, err := db.DB.QueryContext(ctx, query, routeID)
	if err != nil {
		return nil, fmt.Errorf("points by route: %w", err)
	}
	defer rows.Close()

	var points []RoutePoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate route points: %w", err)
	}
	return points, nil
}

// scanPoint decodes one route_points row.  Kept as a helper so every query
// in this file reads columns in exactly one order.
func scanPoint(rows *sql.Rows) (RoutePoint, error) {
	var (
		p         RoutePoint
		lat, lon  sql.NullFloat64
		elevation sql.NullFloat64
		ptime     sql.NullInt64
		created   sql.NullInt64
	)
	if err := rows.Scan(&p.ID, &p.RouteID, &lat, &lon, &elevation, &ptime, &p.PointOrder, &p.Description, &created); err != nil {
		return p, fmt.Errorf("scan route point: %w", err)
	}
	p.Latitude = floatPtr(lat)
	p.Longitude = floatPtr(lon)
	p.Elevation = floatPtr(elevation)
	p.Time = unixPtr(ptime)
	if created.Valid {
		p.CreatedAt = time.Unix(created.Int64, 0).UTC()
	}
	return p, nil
}

// ReplaceRoutePoints swaps a route's point set for a freshly uploaded one
// in a single transaction: soft-delete everything live, then bulk-insert
// the new sequence.  Either both steps commit or neither does, so a crash
// or a failed insert can never leave the route with zero live points.
// Returns the number of points inserted.
func (db *Database) ReplaceRoutePoints(ctx context.Context, routeID int64, points []RoutePoint) (n int, err error) {
	if db.Driver == "pgx" {
		// PostgreSQL gets the COPY-based path; same transaction shape,
		// fewer round-trips for long tracks.
		return db.replaceRoutePointsCopy(ctx, routeID, points)
	}

	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace points: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ph := newPlaceholderGenerator(db.Driver)
	del := fmt.Sprintf(`UPDATE route_points SET isDeleted = 1 WHERE routeID = %s AND isDeleted = 0`, ph())
	if _, err = tx.ExecContext(ctx, del, routeID); err != nil {
		return 0, fmt.Errorf("soft-delete old points: %w", err)
	}

	if err = db.insertPointsBulk(ctx, tx, routeID, points, 500); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit replace points: %w", err)
	}
	return len(points), nil
}

// insertPointsBulk inserts points in batches using multi-row VALUES.
// Portable: only standard SQL and database/sql, no vendor extensions, so
// the same code path serves SQLite files and PostgreSQL.  Batching keeps
// statement size bounded for tracks with tens of thousands of samples.
func (db *Database) insertPointsBulk(ctx context.Context, tx *sql.Tx, routeID int64, points []RoutePoint, batch int) error {
	if len(points) == 0 {
		return nil
	}
	if batch <= 0 {
		batch = 500
	}

	const cols = 10
	now := time.Now().Unix()

	for start := 0; start < len(points); start += batch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := start + batch
		if end > len(points) {
			end = len(points)
		}
		chunk := points[start:end]

		ph := newPlaceholderGenerator(db.Driver)
		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*cols)
		for _, p := range chunk {
			row := make([]string, cols)
			for i := range row {
				row[i] = ph()
			}
			values = append(values, "("+strings.Join(row, ",")+")")
			args = append(args,
				db.NextID(), routeID,
				nullFloat(p.Latitude), nullFloat(p.Longitude), nullFloat(p.Elevation),
				nullUnix(p.Time), p.PointOrder, p.Description, now, 0,
			)
		}

		query := `INSERT INTO route_points
(id, routeID, latitude, longitude, elevation, pointTime, pointOrder, description, createdAt, isDeleted)
VALUES ` + strings.Join(values, ",")

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("bulk insert points: %w", err)
		}
	}
	return nil
}

// =====================
// Single-point CRUD
// =====================

// PointByID fetches one live point, nil when absent.
func (db *Database) PointByID(ctx context.Context, id int64) (*RoutePoint, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`SELECT id, routeID, latitude, longitude, elevation, pointTime, pointOrder,
       COALESCE(description, ''), createdAt
FROM route_points
WHERE id = %s AND isDeleted = 0`, ph())

	rows, err := db.DB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("point by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanPoint(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPoint stores one manually created point and returns its ID.
func (db *Database) InsertPoint(ctx context.Context, p RoutePoint) (int64, error) {
	id := db.NextID()
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`INSERT INTO route_points
(id, routeID, latitude, longitude, elevation, pointTime, pointOrder, description, createdAt, isDeleted)
VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,0)`,
		ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph())

	_, err := db.DB.ExecContext(ctx, query,
		id, p.RouteID, nullFloat(p.Latitude), nullFloat(p.Longitude), nullFloat(p.Elevation),
		nullUnix(p.Time), p.PointOrder, p.Description, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert point: %w", err)
	}
	return id, nil
}

// UpdatePoint rewrites the mutable fields of a live point.
func (db *Database) UpdatePoint(ctx context.Context, p RoutePoint) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`UPDATE route_points
SET latitude = %s, longitude = %s, elevation = %s, pointOrder = %s, description = %s
WHERE id = %s AND isDeleted = 0`, ph(), ph(), ph(), ph(), ph(), ph())

	res, err := db.DB.ExecContext(ctx, query,
		nullFloat(p.Latitude), nullFloat(p.Longitude), nullFloat(p.Elevation),
		p.PointOrder, p.Description, p.ID)
	if err != nil {
		return false, fmt.Errorf("update point: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// SoftDeletePoint marks a single point deleted.
func (db *Database) SoftDeletePoint(ctx context.Context, id int64) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`UPDATE route_points SET isDeleted = 1 WHERE id = %s`, ph())
	res, err := db.DB.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("soft delete point: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// CountPoints reports how many live points exist across all routes.
func (db *Database) CountPoints(ctx context.Context) (int64, error) {
	var count sql.NullInt64
	err := db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM route_points WHERE isDeleted = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return count.Int64, nil
}

// =====================
// Geocode backfill support
// =====================

// MissingPointCoordinates scans live points whose latitude or longitude is
// null.  The query string falls back to a positional label when the point
// has no description, so the geocoder always receives something to chew on.
func (db *Database) MissingPointCoordinates(ctx context.Context) ([]MissingEntity, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT id, COALESCE(description, '')
FROM route_points
WHERE (latitude IS NULL OR longitude IS NULL) AND isDeleted = 0
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan points missing coordinates: %w", err)
	}
	defer rows.Close()

	var out []MissingEntity
	for rows.Next() {
		var (
			id   int64
			desc string
		)
		if err := rows.Scan(&id, &desc); err != nil {
			return nil, fmt.Errorf("scan missing point: %w", err)
		}
		query := strings.TrimSpace(desc)
		if query == "" {
			query = fmt.Sprintf("Route Point %d", id)
		}
		out = append(out, MissingEntity{ID: id, Query: query})
	}
	return out, rows.Err()
}

// UpdatePointCoordinates persists geocoded coordinates onto one point.
func (db *Database) UpdatePointCoordinates(ctx context.Context, id int64, lat, lon float64) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`UPDATE route_points SET latitude = %s, longitude = %s WHERE id = %s AND isDeleted = 0`,
		ph(), ph(), ph())
	res, err := db.DB.ExecContext(ctx, query, lat, lon, id)
	if err != nil {
		return false, fmt.Errorf("update point coordinates: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}
