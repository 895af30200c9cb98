package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// =====================
// Route image store
// =====================

func scanImage(rows *sql.Rows) (RouteImage, error) {
	var (
		img              RouteImage
		lat, lon         sql.NullFloat64
		created, updated sql.NullInt64
	)
	if err := rows.Scan(&img.ID, &img.RouteID, &img.ImageURL, &img.Caption, &img.FileName,
		&img.FilePath, &lat, &lon, &created, &updated); err != nil {
		return img, fmt.Errorf("scan image: %w", err)
	}
	img.Latitude = floatPtr(lat)
	img.Longitude = floatPtr(lon)
	if created.Valid {
		img.CreatedAt = time.Unix(created.Int64, 0).UTC()
	}
	if updated.Valid {
		img.UpdatedAt = time.Unix(updated.Int64, 0).UTC()
	}
	return img, nil
}

const imageColumns = `id, routeID, COALESCE(imageURL, ''), COALESCE(caption, ''), COALESCE(fileName, ''),
       COALESCE(filePath, ''), latitude, longitude, createdAt, updatedAt`

// ImagesByRoute lists live images of one route in upload order.
func (db *Database) ImagesByRoute(ctx context.Context, routeID int64) ([]RouteImage, error) {
	ph := newPlaceholderGenerator(db.Driver)
	rows, err := db.DB.QueryContext(ctx, `SELECT `+imageColumns+`
FROM route_images WHERE routeID = `+ph()+` AND isDeleted = 0 ORDER BY id`, routeID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []RouteImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// ImageByID fetches one live image, nil when absent.
func (db *Database) ImageByID(ctx context.Context, id int64) (*RouteImage, error) {
	ph := newPlaceholderGenerator(db.Driver)
	rows, err := db.DB.QueryContext(ctx, `SELECT `+imageColumns+`
FROM route_images WHERE id = `+ph()+` AND isDeleted = 0`, id)
	if err != nil {
		return nil, fmt.Errorf("image by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	img, err := scanImage(rows)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// InsertImage stores a new image record and returns its ID.
func (db *Database) InsertImage(ctx context.Context, img RouteImage) (int64, error) {
	id := db.NextID()
	now := time.Now().Unix()
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`INSERT INTO route_images
(id, routeID, imageURL, caption, fileName, filePath, latitude, longitude, createdAt, updatedAt, isDeleted)
VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,0)`, ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph())

	_, err := db.DB.ExecContext(ctx, query,
		id, img.RouteID, img.ImageURL, img.Caption, img.FileName, img.FilePath,
		nullFloat(img.Latitude), nullFloat(img.Longitude), now, now)
	if err != nil {
		return 0, fmt.Errorf("insert image: %w", err)
	}
	return id, nil
}

// UpdateImage rewrites the mutable fields of a live image.
func (db *Database) UpdateImage(ctx context.Context, img RouteImage) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`UPDATE route_images
SET imageURL = %s, caption = %s, fileName = %s, filePath = %s, latitude = %s, longitude = %s, updatedAt = %s
WHERE id = %s AND isDeleted = 0`, ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph())

	res, err := db.DB.ExecContext(ctx, query,
		img.ImageURL, img.Caption, img.FileName, img.FilePath,
		nullFloat(img.Latitude), nullFloat(img.Longitude), time.Now().Unix(), img.ID)
	if err != nil {
		return false, fmt.Errorf("update image: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// SoftDeleteImage marks an image deleted.
func (db *Database) SoftDeleteImage(ctx context.Context, id int64) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	res, err := db.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE route_images SET isDeleted = 1 WHERE id = %s`, ph()), id)
	if err != nil {
		return false, fmt.Errorf("soft delete image: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// MissingImageCoordinates scans live images lacking coordinates.  The
// caption is the most descriptive text we hold, so it drives the geocode
// query; the file name is the fallback when the caption is blank.
func (db *Database) MissingImageCoordinates(ctx context.Context) ([]MissingEntity, error) {
	rows, err := db.DB.QueryContext(ctx, `SELECT id, COALESCE(caption, ''), COALESCE(fileName, '')
FROM route_images
WHERE (latitude IS NULL OR longitude IS NULL) AND isDeleted = 0
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan images missing coordinates: %w", err)
	}
	defer rows.Close()

	var out []MissingEntity
	for rows.Next() {
		var (
			id                int64
			caption, fileName string
		)
		if err := rows.Scan(&id, &caption, &fileName); err != nil {
			return nil, fmt.Errorf("scan missing image: %w", err)
		}
		query := strings.TrimSpace(caption)
		if query == "" {
			query = strings.TrimSpace(fileName)
		}
		if query == "" {
			query = fmt.Sprintf("Image %d", id)
		}
		out = append(out, MissingEntity{ID: id, Query: query})
	}
	return out, rows.Err()
}

// UpdateImageCoordinates persists geocoded coordinates onto one image.
func (db *Database) UpdateImageCoordinates(ctx context.Context, id int64, lat, lon float64) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`UPDATE route_images SET latitude = %s, longitude = %s WHERE id = %s AND isDeleted = 0`,
		ph(), ph(), ph())
	res, err := db.DB.ExecContext(ctx, query, lat, lon, id)
	if err != nil {
		return false, fmt.Errorf("update image coordinates: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}
