package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// =====================
// Route store
// =====================

const routeColumns = `r.id, COALESCE(r.routeName, ''), COALESCE(r.parkID, 0), COALESCE(r.description, ''),
       COALESCE(r.difficulty, ''), r.distance, r.latitude, r.longitude, COALESCE(r.geojson, ''),
       r.createdAt, r.updatedAt`

// scanRoute decodes one routes row, optionally joined with its park.
func scanRoute(rows *sql.Rows, withPark bool) (Route, error) {
	var (
		r                  Route
		distance, lat, lon sql.NullFloat64
		created, updated   sql.NullInt64
	)
	dest := []any{&r.ID, &r.RouteName, &r.ParkID, &r.Description, &r.Difficulty,
		&distance, &lat, &lon, &r.GeoJSON, &created, &updated}

	var (
		parkID           sql.NullInt64
		parkName         sql.NullString
		parkLocation     sql.NullString
		parkLat, parkLon sql.NullFloat64
	)
	if withPark {
		dest = append(dest, &parkID, &parkName, &parkLocation, &parkLat, &parkLon)
	}

	if err := rows.Scan(dest...); err != nil {
		return r, fmt.Errorf("scan route: %w", err)
	}
	r.Distance = floatPtr(distance)
	r.Latitude = floatPtr(lat)
	r.Longitude = floatPtr(lon)
	if created.Valid {
		r.CreatedAt = time.Unix(created.Int64, 0).UTC()
	}
	if updated.Valid {
		r.UpdatedAt = time.Unix(updated.Int64, 0).UTC()
	}
	if withPark && parkID.Valid {
		r.Park = &Park{
			ID:        parkID.Int64,
			ParkName:  parkName.String,
			Location:  parkLocation.String,
			Latitude:  floatPtr(parkLat),
			Longitude: floatPtr(parkLon),
		}
	}
	return r, nil
}

// AllRoutes lists live routes with their parks joined in, newest first.
func (db *Database) AllRoutes(ctx context.Context) ([]Route, error) {
	query := `SELECT ` + routeColumns + `,
       p.id, p.parkName, p.location, p.latitude, p.longitude
FROM routes r
LEFT JOIN parks p ON r.parkID = p.id AND p.isDeleted = 0
WHERE r.isDeleted = 0
ORDER BY r.createdAt DESC, r.id DESC`

	rows, err := db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		r, err := scanRoute(rows, true)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// RouteByID fetches one live route with its park, nil when absent.
func (db *Database) RouteByID(ctx context.Context, id int64) (*Route, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := `SELECT ` + routeColumns + `,
       p.id, p.parkName, p.location, p.latitude, p.longitude
FROM routes r
LEFT JOIN parks p ON r.parkID = p.id AND p.isDeleted = 0
WHERE r.id = ` + ph() + ` AND r.isDeleted = 0`

	rows, err := db.DB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("route by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanRoute(rows, true)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertRoute stores a new route and returns its ID.  Timestamps are
// assigned here so callers cannot drift the clock.
func (db *Database) InsertRoute(ctx context.Context, r Route) (int64, error) {
	id := db.NextID()
	now := time.Now().Unix()
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`INSERT INTO routes
(id, routeName, parkID, description, difficulty, distance, latitude, longitude, geojson, createdAt, updatedAt, isDeleted)
VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,0)`,
		ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph())

	_, err := db.DB.ExecContext(ctx, query,
		id, r.RouteName, r.ParkID, r.Description, r.Difficulty,
		nullFloat(r.Distance), nullFloat(r.Latitude), nullFloat(r.Longitude), r.GeoJSON, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert route: %w", err)
	}
	return id, nil
}

// UpdateRoute rewrites the mutable fields of a live route.
func (db *Database) UpdateRoute(ctx context.Context, r Route) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`UPDATE routes
SET routeName = %s, parkID = %s, description = %s, difficulty = %s, distance = %s,
    latitude = %s, longitude = %s, updatedAt = %s
WHERE id = %s AND isDeleted = 0`,
		ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph())

	res, err := db.DB.ExecContext(ctx, query,
		r.RouteName, r.ParkID, r.Description, r.Difficulty, nullFloat(r.Distance),
		nullFloat(r.Latitude), nullFloat(r.Longitude), time.Now().Unix(), r.ID)
	if err != nil {
		return false, fmt.Errorf("update route: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// SoftDeleteRoute marks a route deleted; its points stay in place for
// history but stop being served because every read joins on the route.
func (db *Database) SoftDeleteRoute(ctx context.Context, id int64) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	res, err := db.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE routes SET isDeleted = 1 WHERE id = %s`, ph()), id)
	if err != nil {
		return false, fmt.Errorf("soft delete route: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// CountRoutes reports how many live routes exist.
func (db *Database) CountRoutes(ctx context.Context) (int64, error) {
	var count sql.NullInt64
	if err := db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM routes WHERE isDeleted = 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count routes: %w", err)
	}
	return count.Int64, nil
}

// UpdateRouteGeoJSON replaces the cached LineString for a route.  The
// cache is regenerated on every upload; stale text is simply overwritten.
func (db *Database) UpdateRouteGeoJSON(ctx context.Context, routeID int64, geoJSON string) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`UPDATE routes SET geojson = %s, updatedAt = %s WHERE id = %s AND isDeleted = 0`,
		ph(), ph(), ph())
	res, err := db.DB.ExecContext(ctx, query, geoJSON, time.Now().Unix(), routeID)
	if err != nil {
		return false, fmt.Errorf("update route geojson: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// MissingRouteCoordinates scans live routes that still lack coordinates.
func (db *Database) MissingRouteCoordinates(ctx context.Context) ([]MissingEntity, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT id, COALESCE(routeName, '')
FROM routes
WHERE (latitude IS NULL OR longitude IS NULL) AND isDeleted = 0
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan routes missing coordinates: %w", err)
	}
	defer rows.Close()

	var out []MissingEntity
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan missing route: %w", err)
		}
		query := strings.TrimSpace(name)
		if query == "" {
			query = fmt.Sprintf("Route %d", id)
		}
		out = append(out, MissingEntity{ID: id, Query: query})
	}
	return out, rows.Err()
}

// UpdateRouteCoordinates persists geocoded coordinates onto one route.
func (db *Database) UpdateRouteCoordinates(ctx context.Context, id int64, lat, lon float64) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`UPDATE routes SET latitude = %s, longitude = %s WHERE id = %s AND isDeleted = 0`,
		ph(), ph(), ph())
	res, err := db.DB.ExecContext(ctx, query, lat, lon, id)
	if err != nil {
		return false, fmt.Errorf("update route coordinates: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}
