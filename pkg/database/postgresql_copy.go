package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// replaceRoutePointsCopy is the PostgreSQL flavour of ReplaceRoutePoints.
// COPY moves large tracks in far fewer round-trips than multi-row VALUES,
// and pinning one connection with an explicit BEGIN/COMMIT keeps the
// soft-delete and the COPY inside the same transaction, preserving the
// all-or-nothing guarantee of the portable path.
func (db *Database) replaceRoutePointsCopy(ctx context.Context, routeID int64, points []RoutePoint) (n int, err error) {
	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("open postgres connection: %w", err)
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, "BEGIN"); err != nil {
		return 0, fmt.Errorf("begin replace points: %w", err)
	}
	defer func() {
		if err != nil {
			// Detached context: the rollback must go out even when the
			// caller's context is already cancelled.
			rbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_, _ = conn.ExecContext(rbCtx, "ROLLBACK")
		}
	}()

	if _, err = conn.ExecContext(ctx,
		`UPDATE route_points SET isDeleted = 1 WHERE routeID = $1 AND isDeleted = 0`, routeID); err != nil {
		return 0, fmt.Errorf("soft-delete old points: %w", err)
	}

	now := time.Now().Unix()
	rows := make([][]any, 0, len(points))
	for _, p := range points {
		// pgx encodes nil pointers as NULL directly, no sql.Null wrappers.
		var ptime *int64
		if p.Time != nil {
			unix := p.Time.Unix()
			ptime = &unix
		}
		rows = append(rows, []any{
			db.NextID(), routeID,
			p.Latitude, p.Longitude, p.Elevation,
			ptime, p.PointOrder, p.Description, now, 0,
		})
	}

	err = conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver %T", driverConn)
		}
		// Unquoted DDL folded these names to lowercase, and pgx.Identifier
		// quotes verbatim, so the column list stays lowercase here.
		_, copyErr := direct.Conn().CopyFrom(
			ctx,
			pgx.Identifier{"route_points"},
			[]string{"id", "routeid", "latitude", "longitude", "elevation", "pointtime", "pointorder", "description", "createdat", "isdeleted"},
			pgx.CopyFromRows(rows),
		)
		return copyErr
	})
	if err != nil {
		return 0, fmt.Errorf("copy route points: %w", err)
	}

	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return 0, fmt.Errorf("commit replace points: %w", err)
	}
	return len(points), nil
}
