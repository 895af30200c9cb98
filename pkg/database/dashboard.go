package database

import (
	"context"
	"database/sql"
	"fmt"
)

// =====================
// Dashboard aggregates
// =====================

// DashboardStats is the summary block shown on the admin landing page.
type DashboardStats struct {
	Parks         int64           `json:"parks"`
	Routes        int64           `json:"routes"`
	RoutePoints   int64           `json:"routePoints"`
	Images        int64           `json:"images"`
	Feedback      int64           `json:"feedback"`
	AverageRating float64         `json:"averageRating"`
	RoutesPerPark []ParkRouteLoad `json:"routesPerPark"`
	Latest        []RouteFeedback `json:"latestFeedback"`
}

// ParkRouteLoad counts live routes inside one park.
type ParkRouteLoad struct {
	ParkID   int64  `json:"parkId"`
	ParkName string `json:"parkName"`
	Routes   int64  `json:"routes"`
}

// DashboardStats gathers entity counts, the average rating and the
// busiest parks in one call.  Each aggregate is a separate query; the
// numbers are informational so cross-query consistency does not matter.
func (db *Database) DashboardStats(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats
	var err error

	if stats.Parks, err = db.CountParks(ctx); err != nil {
		return stats, err
	}
	if stats.Routes, err = db.CountRoutes(ctx); err != nil {
		return stats, err
	}
	if stats.RoutePoints, err = db.CountPoints(ctx); err != nil {
		return stats, err
	}

	counts := []struct {
		table string
		dest  *int64
	}{
		{"route_images", &stats.Images},
		{"route_feedback", &stats.Feedback},
	}
	for _, c := range counts {
		var n sql.NullInt64
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE isDeleted = 0`, c.table)
		if err := db.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return stats, fmt.Errorf("count %s: %w", c.table, err)
		}
		*c.dest = n.Int64
	}

	var avg sql.NullFloat64
	if err := db.DB.QueryRowContext(ctx,
		`SELECT AVG(rating) FROM route_feedback WHERE isDeleted = 0`).Scan(&avg); err != nil {
		return stats, fmt.Errorf("average rating: %w", err)
	}
	stats.AverageRating = avg.Float64

	rows, err := db.DB.QueryContext(ctx, `SELECT p.id, COALESCE(p.parkName, ''), COUNT(r.id)
FROM parks p
LEFT JOIN routes r ON r.parkID = p.id AND r.isDeleted = 0
WHERE p.isDeleted = 0
GROUP BY p.id, p.parkName
ORDER BY COUNT(r.id) DESC, p.id`)
	if err != nil {
		return stats, fmt.Errorf("routes per park: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var load ParkRouteLoad
		if err := rows.Scan(&load.ParkID, &load.ParkName, &load.Routes); err != nil {
			return stats, fmt.Errorf("scan routes per park: %w", err)
		}
		stats.RoutesPerPark = append(stats.RoutesPerPark, load)
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if stats.Latest, err = db.LatestFeedback(ctx, 5); err != nil {
		return stats, err
	}
	return stats, nil
}
