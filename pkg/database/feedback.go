package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// =====================
// Route feedback store
// =====================

func scanFeedback(rows *sql.Rows) (RouteFeedback, error) {
	var (
		fb               RouteFeedback
		created, updated sql.NullInt64
	)
	if err := rows.Scan(&fb.ID, &fb.RouteID, &fb.Rating, &fb.Strenuousness, &fb.Skill,
		&fb.Comments, &fb.UserName, &created, &updated); err != nil {
		return fb, fmt.Errorf("scan feedback: %w", err)
	}
	if created.Valid {
		fb.CreatedAt = time.Unix(created.Int64, 0).UTC()
	}
	if updated.Valid {
		fb.UpdatedAt = time.Unix(updated.Int64, 0).UTC()
	}
	return fb, nil
}

const feedbackColumns = `id, routeID, COALESCE(rating, 0), COALESCE(strenuousness, 0), COALESCE(skill, 0),
       COALESCE(comments, ''), COALESCE(userName, ''), createdAt, updatedAt`

// FeedbackByRoute lists live feedback for one route, newest first.
func (db *Database) FeedbackByRoute(ctx context.Context, routeID int64) ([]RouteFeedback, error) {
	ph := newPlaceholderGenerator(db.Driver)
	rows, err := db.DB.QueryContext(ctx, `SELECT `+feedbackColumns+`
FROM route_feedback WHERE routeID = `+ph()+` AND isDeleted = 0 ORDER BY createdAt DESC, id DESC`, routeID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []RouteFeedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// LatestFeedback returns the most recent live entries across all routes.
func (db *Database) LatestFeedback(ctx context.Context, limit int) ([]RouteFeedback, error) {
	if limit <= 0 {
		limit = 5
	}
	ph := newPlaceholderGenerator(db.Driver)
	rows, err := db.DB.QueryContext(ctx, `SELECT `+feedbackColumns+`
FROM route_feedback WHERE isDeleted = 0 ORDER BY createdAt DESC, id DESC LIMIT `+ph(), limit)
	if err != nil {
		return nil, fmt.Errorf("latest feedback: %w", err)
	}
	defer rows.Close()

	var out []RouteFeedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// clampScore keeps a review score inside 1..5; out-of-range input is
// clamped rather than rejected.
func clampScore(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

// InsertFeedback stores a new feedback entry and returns its ID.
func (db *Database) InsertFeedback(ctx context.Context, fb RouteFeedback) (int64, error) {
	fb.Rating = clampScore(fb.Rating)
	fb.Strenuousness = clampScore(fb.Strenuousness)
	fb.Skill = clampScore(fb.Skill)

	id := db.NextID()
	now := time.Now().Unix()
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`INSERT INTO route_feedback
(id, routeID, rating, strenuousness, skill, comments, userName, createdAt, updatedAt, isDeleted)
VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,0)`, ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph(), ph())

	_, err := db.DB.ExecContext(ctx, query,
		id, fb.RouteID, fb.Rating, fb.Strenuousness, fb.Skill, fb.Comments, fb.UserName, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert feedback: %w", err)
	}
	return id, nil
}

// SoftDeleteFeedback marks a feedback entry deleted.
func (db *Database) SoftDeleteFeedback(ctx context.Context, id int64) (bool, error) {
	ph := newPlaceholderGenerator(db.Driver)
	res, err := db.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE route_feedback SET isDeleted = 1 WHERE id = %s`, ph()), id)
	if err != nil {
		return false, fmt.Errorf("soft delete feedback: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}
