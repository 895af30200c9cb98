package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"hiking-trail-map/pkg/api"
	"hiking-trail-map/pkg/database"
	"hiking-trail-map/pkg/geocode"
	"hiking-trail-map/pkg/gpxarchive"
)

//go:embed public_html/*
var content embed.FS

// CompileVersion is stamped by the linker on release builds.
var CompileVersion = "dev"

var domain = flag.String("domain", "", "Use 80 and 443 ports. Automatic HTTPS cert via Let's Encrypt.")
var dbType = flag.String("db-type", "sqlite", "Type of the database driver: sqlite, chai, duckdb, or pgx (postgresql)")
var dbPath = flag.String("db-path", "", "Path to the database file (defaults to the current folder, applicable for sqlite and chai drivers.)")
var dbConn = flag.String("db-conn", "", "Raw database DSN; overrides the db-host/db-port/db-user fields (applicable for pgx driver)")
var dbHost = flag.String("db-host", "127.0.0.1", "Database host (applicable for pgx driver)")
var dbPort = flag.Int("db-port", 5432, "Database port (applicable for pgx driver)")
var dbUser = flag.String("db-user", "postgres", "Database user (applicable for pgx driver)")
var dbPass = flag.String("db-pass", "", "Database password (applicable for pgx driver)")
var dbName = flag.String("db-name", "HikingTrailMap", "Database name (applicable for pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", "prefer", "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")
var port = flag.Int("port", 8765, "Port for running the server")
var version = flag.Bool("version", false, "Show the application version")
var uploadsDir = flag.String("uploads-dir", "uploads", "Directory where raw uploaded GPX files are archived. Empty disables archival.")
var mapboxToken = flag.String("mapbox-token", "", "Mapbox access token. When set, Mapbox becomes the geocoding provider.")
var geocoderKind = flag.String("geocoder", "auto", `Geocoding provider: "mapbox", "nominatim", "auto" (mapbox when a token is set), or "off"`)
var nominatimServer = flag.String("nominatim-server", "", "Nominatim server URL; empty selects the public OSM instance")
var cacheTTL = flag.Duration("cache-ttl", 30*time.Second, "TTL for cached dashboard and map responses. Zero disables the cache.")
var archivePath = flag.String("gpx-archive", "archive/routes.tar.gz", "Destination for the tar.gz bundle of all route GPX exports. Empty disables it.")
var archiveInterval = flag.Duration("gpx-archive-interval", 24*time.Hour, "How often the GPX bundle is rebuilt")
var heavyCooldown = flag.Duration("heavy-cooldown", 5*time.Second, "Per-IP cooldown between GPX uploads or geocode backfills")
var defaultLat = flag.Float64("default-lat", 44.08832, "Default map latitude")
var defaultLon = flag.Float64("default-lon", 42.97577, "Default map longitude")
var defaultZoom = flag.Int("default-zoom", 11, "Default map zoom")

// withServerHeader wraps any http.Handler, adding the header
// "Server: hiking-trail-map/<CompileVersion>".
//
// A HEAD request to "/" is answered 200 OK with no body so monitors can
// see the service is alive.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "hiking-trail-map/"+CompileVersion)

		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// serveWithDomain runs:
//   - :80  — ACME HTTP-01 challenge + 301 redirect to https://<domain>/…
//   - :443 — HTTPS with automatic Let's Encrypt certificates.
//
// If autocert cannot issue a cert for some host/SNI the server still
// hands out the previously obtained fallback cert, which silences the
// "host not configured" noise in the logs.
//
// Compatibility: TLS >= 1.0, ALPN h2/http1.1/http1.0.
// All errors are logged only.
func serveWithDomain(domain string, handler http.Handler) {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			// Allow bare and www.<domain>
			if host == domain || host == "www."+domain {
				return nil
			}
			// An IP address? Do not block, just never request a cert.
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	// :80 (challenge + redirect)
	go func() {
		mux80 := http.NewServeMux()
		mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
		mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})

		log.Printf("HTTP  server (ACME+redirect) ➜ :80")
		if err := (&http.Server{
			Addr:              ":80",
			Handler:           mux80,
			ReadHeaderTimeout: 10 * time.Second,
		}).ListenAndServe(); err != nil {
			log.Printf("HTTP  server error: %v", err)
		}
	}()

	// Daily certificate check
	go func() {
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for range t.C {
			if _, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err != nil {
				log.Printf("autocert renewal check: %v", err)
			}
		}
	}()

	// :443 (HTTPS)
	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS10
	tlsCfg.NextProtos = append([]string{"http/1.0"}, tlsCfg.NextProtos...)

	// Fallback cert for IPs and odd SNI values
	var defaultCert *tls.Certificate
	go func() {
		for defaultCert == nil {
			if c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err == nil {
				defaultCert = c
			}
			time.Sleep(time.Minute)
		}
	}()
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		if defaultCert != nil {
			return defaultCert, nil
		}
		return nil, err
	}

	log.Printf("HTTPS server for %s ➜ :443 (TLS ≥1.0, ALPN h2/http1.1/1.0)", domain)
	if err := (&http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}).ListenAndServeTLS("", ""); err != nil {
		log.Printf("HTTPS server error: %v", err)
	}
}

// isClientDisconnect returns true for network errors indicating that the
// client has gone away (browser navigated away or closed the tab) while
// we were writing the response. These are normal and should not be
// logged as errors.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}

// mapHandler renders the map page.  Markers are NOT baked into the
// HTML; the page's JS fetches /api/map/markers itself.
func mapHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	tmpl := template.Must(template.ParseFS(content, "public_html/map.html"))

	ver := CompileVersion
	if ver == "dev" {
		ver = "latest"
	}

	data := struct {
		Version     string
		DefaultLat  float64
		DefaultLon  float64
		DefaultZoom int
	}{
		Version:     ver,
		DefaultLat:  *defaultLat,
		DefaultLon:  *defaultLon,
		DefaultZoom: *defaultZoom,
	}

	// Render into a buffer to avoid a second WriteHeader on error.
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Printf("template: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		if isClientDisconnect(err) {
			log.Printf("client disconnected while writing response")
		} else {
			log.Printf("write resp: %v", err)
		}
	}
}

// buildGeocoder picks the provider from flags.  Nil means geocoding is
// disabled and the backfill endpoints answer 503.
func buildGeocoder() geocode.Geocoder {
	kind := strings.ToLower(*geocoderKind)
	if kind == "auto" {
		if *mapboxToken != "" {
			kind = "mapbox"
		} else {
			kind = "nominatim"
		}
	}
	switch kind {
	case "mapbox":
		mb, err := geocode.NewMapbox(*mapboxToken)
		if err != nil {
			log.Printf("geocoder: %v; geocoding disabled", err)
			return nil
		}
		log.Printf("geocoder: mapbox")
		return mb
	case "nominatim":
		log.Printf("geocoder: nominatim")
		return geocode.NewNominatim(*nominatimServer)
	case "off":
		log.Printf("geocoder: disabled")
		return nil
	default:
		log.Printf("geocoder: unknown kind %q; geocoding disabled", kind)
		return nil
	}
}

func main() {
	// 1. Flags and version
	flag.Parse()

	if *version {
		fmt.Printf("hiking-trail-map version %s\n", CompileVersion)
		return
	}

	// 2. Privilege warning for :80 / :443
	if *domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		log.Println("⚠  Binding to :80 / :443 requires super-user rights; run with sudo or as root.")
	}

	// 3. Database
	dbCfg := database.Config{
		DBType:    *dbType,
		DBPath:    *dbPath,
		DBConn:    *dbConn,
		DBHost:    *dbHost,
		DBPort:    *dbPort,
		DBUser:    *dbUser,
		DBPass:    *dbPass,
		DBName:    *dbName,
		PGSSLMode: *pgSSLMode,
		Port:      *port,
	}
	db, err := database.NewDatabase(dbCfg)
	if err != nil {
		log.Fatalf("DB init: %v", err)
	}
	if err = db.InitSchema(); err != nil {
		log.Fatalf("DB schema: %v", err)
	}

	// 4. API handler and web routes
	handler := api.NewHandler(db, buildGeocoder(), *uploadsDir, log.Printf)
	handler.Cache = api.NewResponseCache(*cacheTTL)
	handler.Limiter = api.NewRateLimiter(*heavyCooldown)

	if *archivePath != "" {
		ctxArc, cancelArc := context.WithCancel(context.Background())
		defer cancelArc()
		handler.Archive = gpxarchive.Start(ctxArc, db, *archivePath, *archiveInterval, log.Printf)
	}

	staticFS, err := fs.Sub(content, "public_html")
	if err != nil {
		log.Fatalf("static fs: %v", err)
	}

	http.Handle("/static/", http.StripPrefix("/static/",
		http.FileServer(http.FS(staticFS))))
	http.HandleFunc("/", mapHandler)
	handler.Register(http.DefaultServeMux)

	rootHandler := withServerHeader(http.DefaultServeMux)

	// 5. HTTP/HTTPS servers
	if *domain != "" {
		// Dual server :80 + :443 with Let's Encrypt
		go serveWithDomain(*domain, rootHandler)
	} else {
		// Plain HTTP on the -port flag
		addr := fmt.Sprintf(":%d", *port)
		go func() {
			log.Printf("HTTP server ➜ http://localhost%s", addr)
			if err := http.ListenAndServe(addr, rootHandler); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	// 6. Keep the main goroutine alive
	select {}
}
