package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/KaramelBytes/fileflow-cli/internal/correlation"
	"github.com/KaramelBytes/fileflow-cli/internal/dataset"
	"github.com/KaramelBytes/fileflow-cli/internal/logging"
	"github.com/KaramelBytes/fileflow-cli/internal/profile"
	"github.com/KaramelBytes/fileflow-cli/internal/rules"
	"github.com/KaramelBytes/fileflow-cli/internal/stats"
	"github.com/KaramelBytes/fileflow-cli/internal/transform"
	"github.com/KaramelBytes/fileflow-cli/internal/utils"
)

// RunRequest is the body of POST /api/preview and POST /api/export. Rules
// use the CLI assignment form, e.g. "tag:replace-if=N/A=>0".
type RunRequest struct {
	Rules  []string `json:"rules"`
	Output string   `json:"output,omitempty"`
}

// CorrelationResponse names the two columns next to the metrics.
type CorrelationResponse struct {
	X string `json:"x"`
	Y string `json:"y"`
	correlation.Result
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := dataset.Inspect(r.Context(), s.src.Path(), s.src.Options(), s.opt.SampleRows)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, info)
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := s.src.Profiles(r.Context(), s.opt.Workers)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cols)
}

func (s *Server) handleColumnStats(w http.ResponseWriter, r *http.Request) {
	idx, err := s.lookup(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	col, err := s.src.Column(r.Context(), idx)
	if err != nil {
		respondError(w, r, err)
		return
	}
	res, err := stats.ComputeColumns(r.Context(), s.src, []profile.Column{col}, 1)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res[0].Display())
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("x") == "" || q.Get("y") == "" {
		respondError(w, r, fmt.Errorf("%w: query parameters x and y are required", errBadRequest))
		return
	}
	xi, err := s.lookup(q.Get("x"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	yi, err := s.lookup(q.Get("y"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	res, err := correlation.Between(r.Context(), s.src, xi, yi, s.opt.Missing, correlation.Options{Ties: s.opt.Ties})
	if err != nil {
		respondError(w, r, err)
		return
	}
	headers := s.src.Headers()
	writeJSON(w, r, http.StatusOK, CorrelationResponse{X: headers[xi], Y: headers[yi], Result: res})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p, _, err := s.pipeline(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sum, err := p.Preview(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, req, err := s.pipeline(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	dir := s.opt.ExportDir
	if dir == "" {
		dir = filepath.Dir(s.src.Path())
	}
	name := filepath.Base(strings.TrimSpace(req.Output))
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = filepath.Base(utils.DefaultOutputPath(s.src.Path(), "processed"))
	}
	sum, err := p.Export(r.Context(), filepath.Join(dir, name))
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("export written", "output", sum.Output, "run_id", sum.RunID)
	writeJSON(w, r, http.StatusCreated, sum)
}

// pipeline decodes a RunRequest and builds the pipeline it describes.
func (s *Server) pipeline(w http.ResponseWriter, r *http.Request) (*transform.Pipeline, RunRequest, error) {
	var req RunRequest
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return nil, req, fmt.Errorf("%w: decode body: %v", errBadRequest, err)
		}
	}
	rs := rules.New(s.src.Headers())
	if err := rs.ApplyAssignments(req.Rules); err != nil {
		return nil, req, err
	}
	p, err := transform.New(s.src, rs, s.opt.Transform)
	if err != nil {
		return nil, req, err
	}
	return p, req, nil
}

// lookup resolves a column by header name or 0-based position.
func (s *Server) lookup(ref string) (int, error) {
	idx, err := rules.New(s.src.Headers()).Lookup(ref)
	return idx.Int(), err
}
