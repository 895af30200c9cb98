package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// =====================
// Park store
// =====================

func scanPark(rows *sql.Rows) (Park, error) {
	var (
		p                Park
		lat, lon         sql.NullFloat64
		created, updated sql.NullInt64
	)
	if err := rows.Scan(&p.ID, &p.ParkName, &p.Location, &p.Description, &p.ImageURL,
		&lat, &lon, &created, &updated); err != nil {
		return p, fmt.Errorf("scan park: %w", err)
	}
	p.Latitude = floatPtr(lat)
	p.Longitude = floatPtr(lon)
	if created.Valid {
		p.CreatedAt = time.Unix(created.Int64, 0).UTC()
	}
	if updated.Valid {
		p.UpdatedAt = time.Unix(updated.Int64, 0).UTC()
	}
	return p, nil
}

// AllParks lists live parks ordered by name.
func (db *Database) AllParks(ctx context.Context) ([]Park, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT id, COALESCE(parkName, ''), COALESCE(location, ''),
       COALESCE(description, ''), COALESCE(imageURL, ''), latitude, longitude, createdAt, updatedAt
FROM parks WHERE isDeleted = 0 ORDER BY parkName, id`)
	if err != nil {
		return nil, fmt.Errorf("list parks: %w", err)
	}
	defer rows.Close()

	var parks []Park
	for rows.Next() {
		p, err := scanPark(rows)
		if err != nil {
			return nil, err
		}
		parks = append(parks, p)
	}
	return parks, rows.Err()
}

// ParkByID fetches one live park, nil when absent.
func (db *Database) ParkByID(ctx context.Context, id int64) (*Park, error) {
	ph := newPlaceholderGenerator(db.Driver)
	rows, err := db.DB.QueryContext(ctx, `SELECT id, COALESCE(parkName, ''), COALESCE(location, ''),
       COALESCE(description, ''), COALESCE(imageURL, ''), latitude, longitude, createdAt, updatedAt
FROM parks WHERE id = `+ph()+` AND isDeleted = 0`, id)
	if err != nil {
		return nil, fmt.Errorf("park by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanPark(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertPark stores a new park and returns its ID.
func (db *Database) InsertPark(ctx context.Context, p Park) (int64, error) {
	id := db.NextID()
	now := time.Now().Unix()
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`INSERT INTO parks
(id, parkName, location, description, imageURL, latitude, longitude, createdAt, updatedAt, isDeleted)
VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,0)`, ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph())

	_, err := db.DB.ExecContext(ctx, query,
		id, p.ParkName, p.Location, p.Description, p.ImageURL,
		nullFloat(p.Latitude), nullFloat(p.Longitude), now, now)
	if err != nil {
		return 0, fmt.Errorf("insert park: %w", err)
	}
	return id, nil
}

// UpdatePark rewrites the mutable fields of a live park.
func (db *Database) UpdatePark(ctx context.Context, p Park) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`UPDATE parks
SET parkName = %s, location = %s, description = %s, imageURL = %s, latitude = %s, longitude = %s, updatedAt = %s
WHERE id = %s AND isDeleted = 0`, ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph())

	res, err := db.DB.ExecContext(ctx, query,
		p.ParkName, p.Location, p.Description, p.ImageURL,
		nullFloat(p.Latitude), nullFloat(p.Longitude), time.Now().Unix(), p.ID)
	if err != nil {
		return false, fmt.Errorf("update park: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// SoftDeletePark marks a park deleted without touching its routes.
func (db *Database) SoftDeletePark(ctx context.Context, id int64) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	res, err := db.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE parks SET isDeleted = 1 WHERE id = %s`, ph()), id)
	if err != nil {
		return false, fmt.Errorf("soft delete park: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// CountParks reports how many live parks exist.
func (db *Database) CountParks(ctx context.Context) (int64, error) {
	var count sql.NullInt64
	if err := db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM parks WHERE isDeleted = 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count parks: %w", err)
	}
	return count.Int64, nil
}

// MissingParkCoordinates scans live parks that still lack coordinates.
// The geocoder query prefers the location text, falls back to the name,
// and finally to a synthetic "Park {id}" label so no row is skipped.
func (db *Database) MissingParkCoordinates(ctx context.Context) ([]MissingEntity, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT id, COALESCE(location, ''), COALESCE(parkName, '')
FROM parks
WHERE (latitude IS NULL OR longitude IS NULL) AND isDeleted = 0
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan parks missing coordinates: %w", err)
	}
	defer rows.Close()

	var out []MissingEntity
	for rows.Next() {
		var (
			id             int64
			location, name string
		)
		if err := rows.Scan(&id, &location, &name); err != nil {
			return nil, fmt.Errorf("scan missing park: %w", err)
		}
		query := strings.TrimSpace(location)
		if query == "" {
			query = strings.TrimSpace(name)
		}
		if query == "" {
			query = fmt.Sprintf("Park %d", id)
		}
		out = append(out, MissingEntity{ID: id, Query: query})
	}
	return out, rows.Err()
}

// UpdateParkCoordinates persists geocoded coordinates onto one park.
func (db *Database) UpdateParkCoordinates(ctx context.Context, id int64, lat, lon float64) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`UPDATE parks SET latitude = %s, longitude = %s WHERE id = %s AND isDeleted = 0`,
		ph(), ph(), ph())
	res, err := db.DB.ExecContext(ctx, query, lat, lon, id)
	if err != nil {
		return false, fmt.Errorf("update park coordinates: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}
