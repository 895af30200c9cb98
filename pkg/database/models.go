package database

import "time"

// Park is a hiking area grouping several routes.  Coordinates are optional
// until an operator fills them in or the geocode backfill finds them.
type Park struct {
	ID          int64      `json:"id"`
	ParkName    string     `json:"parkName"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	ImageURL    string     `json:"imageURL"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Route is one hiking trail.  GeoJSON is a derived cache of the route's
// point sequence; route_points rows stay authoritative.
type Route struct {
	ID          int64     `json:"id"`
	RouteName   string    `json:"routeName"`
	ParkID      int64     `json:"parkID"`
	Description string    `json:"description"`
	Difficulty  string    `json:"difficulty"`
	Distance    *float64  `json:"distance,omitempty"` // miles
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	GeoJSON     string    `json:"geoJson,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Park *Park `json:"park,omitempty"`
}

// RoutePoint is one waypoint of a route's track.  PointOrder is the
// 1-based position in the sequence; live points of a route keep their
// orders contiguous starting at 1 after every upload.
type RoutePoint struct {
	ID          int64      `json:"id"`
	RouteID     int64      `json:"routeID"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	Elevation   *float64   `json:"elevation,omitempty"` // meters
	Time        *time.Time `json:"time,omitempty"`
	PointOrder  int        `json:"pointOrder"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// RouteImage is a photo attached to a route, optionally georeferenced.
type RouteImage struct {
	ID        int64     `json:"id"`
	RouteID   int64     `json:"routeID"`
	ImageURL  string    `json:"imageURL"`
	Caption   string    `json:"caption"`
	FileName  string    `json:"fileName"`
	FilePath  string    `json:"filePath,omitempty"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RouteFeedback is a hiker's review of a route.
type RouteFeedback struct {
	ID            int64     `json:"id"`
	RouteID       int64     `json:"routeID"`
	Rating        int       `json:"rating"`
	Strenuousness int       `json:"strenuousness"`
	Skill         int       `json:"skill"`
	Comments      string    `json:"comments"`
	UserName      string    `json:"userName"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MissingEntity is one geocode-backfill candidate: the row ID plus the
// query string already resolved from the entity's best text field.
type MissingEntity struct {
	ID    int64
	Query string
}
