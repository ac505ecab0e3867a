// Package site serves the landing page and the downloadable sample batch.
package site

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/farewatch/internal/ridegen"
)

// Sample batch limits for GET /sample.csv.
const (
	defaultSampleRows = 500
	maxSampleRows     = 100000
)

// Register attaches the landing page and sample routes to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	// "/" is a catch-all pattern, so the handler serves the root only.
	mux.Handle("/", NewRootHandler())
	mux.HandleFunc("/sample.csv", HandleSample)
}

// RootHandler serves the embedded landing page.
type RootHandler struct {
	files http.Handler
}

// NewRootHandler creates a new root handler
func NewRootHandler() *RootHandler {
	return &RootHandler{files: http.FileServer(FS())}
}

// ServeHTTP handles GET / and answers 404 for any other unmatched path.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.files.ServeHTTP(w, r)
}

// HandleSample handles GET /sample.csv?rows=N&seed=S with a synthetic batch.
func HandleSample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rows := defaultSampleRows
	if v := r.URL.Query().Get("rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSampleRows {
			http.Error(w, "rows must be between 1 and "+strconv.Itoa(maxSampleRows), http.StatusBadRequest)
			return
		}
		rows = n
	}
	opts := []ridegen.Option{}
	if v := r.URL.Query().Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "seed must be an integer", http.StatusBadRequest)
			return
		}
		opts = append(opts, ridegen.WithSeed(seed))
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sample_rides.csv"`)
	_ = ridegen.WriteCSV(w, ridegen.New(opts...).Generate(rows))
}
