//go:build cgo && duckdb && linux && (amd64 || arm64)

// DuckDB driver is only enabled for Linux builds so cross compilation stays
// predictable and we avoid chasing platform-specific binary packages.
// Requires build tag: -tags duckdb and CGO enabled.
// Build example:
//
//	CGO_ENABLED=1 go build -tags duckdb
//
// Binaries that need DuckDB can import this package with the duckdb tag.
// This file lives outside the default build to keep CGO isolated and optional.
package drivers

import (
	_ "github.com/marcboeker/go-duckdb/v2"
)
