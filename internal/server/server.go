// Package server exposes barcode classification and clear-range trimming
// over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/jbloomlab/deconvolver-code/internal/assign"
	"github.com/jbloomlab/deconvolver-code/internal/barcode"
	"github.com/jbloomlab/deconvolver-code/internal/hit"
	"github.com/jbloomlab/deconvolver-code/internal/trim"
)

// ClassifyRequest holds the hits of one read.
type ClassifyRequest struct {
	Hits []hit.Hit `json:"hits"`
}

// TrimRequest holds the hits of one read to a single barcode.
type TrimRequest struct {
	Hits       []hit.Hit     `json:"hits"`
	ReadLength int           `json:"read_length"`
	Geometry   trim.Geometry `json:"geometry"`
}

// DeconvolveRequest holds the hits of one read. Geometry may be left out
// when the server knows the barcodes.
type DeconvolveRequest struct {
	Hits       []hit.Hit      `json:"hits"`
	ReadLength int            `json:"read_length"`
	Geometry   *trim.Geometry `json:"geometry,omitempty"`
	MinLength  int            `json:"min_length"`
}

// DeconvolveResponse is the outcome of a read and, when it is unique, its
// clear range.
type DeconvolveResponse struct {
	Outcome assign.Outcome `json:"outcome"`
	Result  *trim.Result   `json:"result,omitempty"`
}

type server struct {
	barcodes *barcode.Set
}

// New returns the API handler. barcodes may be nil, in which case
// deconvolve requests must carry a geometry.
func New(barcodes *barcode.Set) http.Handler {
	s := &server{barcodes: barcodes}
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/classify", s.classify)
		r.Post("/trim", s.trim)
		r.Post("/deconvolve", s.deconvolve)
	})
	return r
}

func logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug.Printf("%s %s %d %dB %s [%s]", r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(),
			time.Since(start), chimiddleware.GetReqID(r.Context()))
	})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// status maps an error to the HTTP status it is reported with.
func status(err error) int {
	switch {
	case errors.Is(errors.Invalid, err):
		return http.StatusBadRequest
	case errors.Is(errors.NotExist, err):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func validHits(hits []hit.Hit) error {
	for i, h := range hits {
		if err := h.Validate(); err != nil {
			return errors.E(fmt.Sprintf("hit %d", i), err)
		}
	}
	return nil
}

func (s *server) classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !decode(w, r, &req) {
		return
	}
	if err := validHits(req.Hits); err != nil {
		writeError(w, status(err), err.Error())
		return
	}
	writeJSON(w, assign.Classify(req.Hits))
}

func (s *server) trim(w http.ResponseWriter, r *http.Request) {
	var req TrimRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := trim.Trim(req.Hits, req.ReadLength, req.Geometry)
	if err != nil {
		writeError(w, status(err), err.Error())
		return
	}
	writeJSON(w, res)
}

func (s *server) deconvolve(w http.ResponseWriter, r *http.Request) {
	var req DeconvolveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := validHits(req.Hits); err != nil {
		writeError(w, status(err), err.Error())
		return
	}
	resp := DeconvolveResponse{Outcome: assign.Classify(req.Hits)}
	if resp.Outcome.Kind != assign.Unique {
		writeJSON(w, resp)
		return
	}
	var geom trim.Geometry
	switch {
	case req.Geometry != nil:
		geom = *req.Geometry
	case s.barcodes != nil:
		var err error
		if geom, err = s.barcodes.Geometry(resp.Outcome.Pattern); err != nil {
			writeError(w, status(err), err.Error())
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "no geometry given and no barcodes loaded")
		return
	}
	res, err := trim.Trim(resp.Outcome.Hits, req.ReadLength, geom)
	if err != nil {
		writeError(w, status(err), err.Error())
		return
	}
	res = trim.ApplyMinLength(res, resp.Outcome.Hits, req.MinLength)
	resp.Result = &res
	writeJSON(w, resp)
}
