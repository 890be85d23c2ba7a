package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"watch-harvest/pkg/api"
	"watch-harvest/pkg/logger"
	"watch-harvest/pkg/metrics"
	"watch-harvest/pkg/models"
	"watch-harvest/pkg/store"

	scalargo "github.com/bdpiprava/scalar-go"
	log "github.com/sirupsen/logrus"
)

// server is the read-only HTTP view of the harvested dataset.
type server struct {
	store   store.DocumentStore
	metrics *metrics.Registry
	specDir string
}

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	port := fs.String("port", envOr("PORT", "9090"), "listen port")
	dsn := fs.String("store", envOr("HARVEST_STORE", "file:./data/products.jsonl"), "document store DSN")
	level := fs.String("loglevel", envOr("HARVEST_LOG_LEVEL", "info"), "log level")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	if err := logger.Setup(*level, stderr); err != nil {
		log.Warn(err)
	}

	st, err := store.Open(ctx, *dsn)
	if err != nil {
		log.Errorf("Failed to open store: %v", err)
		return exitFatal
	}
	defer st.Close()
	log.Printf("Store opened at %s", *dsn)

	s := &server{store: st, metrics: metrics.NewRegistry(), specDir: "./"}

	if ip := GetOutboundIP(); ip != nil {
		fmt.Fprintf(stderr, "Local Network URL: http://%s:%s\n", ip.String(), *port)
	} else {
		fmt.Fprintln(stderr, "Could not determine local IP address.")
	}
	fmt.Fprintf(stderr, "Access URL: http://localhost:%s\n", *port)
	fmt.Fprintf(stderr, "API Docs: http://localhost:%s/\n", *port)

	httpServer := &http.Server{
		Addr:              ":" + *port,
		Handler:           s.handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(err)
		return exitFatal
	}
	return exitOK
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// handler counts every request into the registry served at /metrics.
func (s *server) handler() http.Handler {
	return s.metrics.Instrument(http.HandlerFunc(s.rootHandler))
}

func (s *server) rootHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/records" || strings.HasPrefix(r.URL.Path, "/records/"):
		s.recordsHandler(w, r)
		return
	case r.URL.Path == "/metrics":
		s.metrics.Handler().ServeHTTP(w, r)
		return
	case r.URL.Path != "/":
		api.WriteNotFound(w, "Unknown path. Try /records or /records/{reference}", r.URL.Path)
		return
	}

	// Serve Scalar docs on root path
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir(s.specDir),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Watch Harvest API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

// GetOutboundIP returns the address other machines on the network reach us at.
func GetOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		addrs, _ := net.InterfaceAddrs()
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					return ipnet.IP
				}
			}
		}
		return nil
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP
}

func (s *server) recordsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet, r.URL.Path)
		return
	}

	// Path expected: /records or /records/{reference}; references may contain slashes
	ref := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/records"), "/")
	if ref == "" {
		s.listRecords(w, r)
		return
	}

	rec, err := s.store.FindByKey(r.Context(), models.NormalizeReference(ref))
	if err != nil {
		if !errors.Is(err, models.ErrRecordNotFound) {
			log.Printf("Error loading %s: %v", ref, err)
		}
		api.WriteProblem(w, err, r.URL.Path)
		return
	}
	api.WriteJSON(w, http.StatusOK, rec)
}

// listRecords supports ?collection= and ?limit= filters.
func (s *server) listRecords(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.WriteBadRequest(w, fmt.Sprintf("Invalid limit: %s. Must be a non-negative integer.", raw), r.URL.Path)
			return
		}
		limit = parsed
	}
	collection := strings.TrimSpace(r.URL.Query().Get("collection"))

	all, err := s.store.ListAll(r.Context())
	if err != nil {
		log.Printf("Error listing records: %v", err)
		api.WriteProblem(w, err, r.URL.Path)
		return
	}

	out := make([]models.ProductRecord, 0, len(all))
	for _, rec := range all {
		if collection != "" && !strings.EqualFold(rec.Collection, collection) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	api.WriteJSON(w, http.StatusOK, out)
}
