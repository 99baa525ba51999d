package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/rulebook/internal/config"
	"github.com/hyperjump/rulebook/internal/indexer"
	"github.com/hyperjump/rulebook/internal/models"
	"github.com/hyperjump/rulebook/internal/query"
	"github.com/hyperjump/rulebook/internal/service"
	"github.com/hyperjump/rulebook/internal/volume"
	"go.uber.org/zap"
)

type selectVolumesRequest struct {
	Query     string `json:"query"`
	BeamWidth int    `json:"beam_width,omitempty"`
}

type selectVolumesResponse struct {
	Query   string          `json:"query"`
	Volumes []volume.Scored `json:"volumes"`
}

type uploadResponse struct {
	Files  []string             `json:"files"`
	Report *indexer.BuildReport `json:"report,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.String("kind", string(req.Kind)))
	resp, err := s.backend.Query(r.Context(), &req)
	if err != nil {
		s.respondServiceError(w, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSelectVolumes(w http.ResponseWriter, r *http.Request) {
	var req selectVolumesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, models.ErrEmptyQuery.Error())
		return
	}
	if req.BeamWidth <= 0 {
		req.BeamWidth = volume.DefaultBeamWidth
	}
	scored, err := s.backend.SelectVolumes(r.Context(), req.Query, req.BeamWidth)
	if err != nil {
		s.respondServiceError(w, "volume selection failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, selectVolumesResponse{Query: req.Query, Volumes: scored})
}

func (s *Server) handleVolumes(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"volumes": s.backend.Volumes()})
}

// uploadLimit is the request size cap in bytes, falling back to the config package default.
func (s *Server) uploadLimit() int64 {
	maxMB := config.DefaultMaxUploadMB
	if s.config != nil && s.config.MaxUploadMB > 0 {
		maxMB = s.config.MaxUploadMB
	}
	return int64(maxMB) << 20
}

// handleUpload stores every multipart "files" part in the data directory and rebuilds the index
// named by the "kind" form value. rebuild=false stores without rebuilding.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.uploadLimit()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	kind := models.IndexKind(r.FormValue("kind"))
	if kind == "" {
		kind = models.IndexHierarchical
	}
	if !kind.Valid() {
		s.respondError(w, http.StatusBadRequest, "unknown index kind")
		return
	}

	resp := uploadResponse{}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "unreadable upload part")
			return
		}
		path, err := s.backend.SaveDocument(fh.Filename, f)
		_ = f.Close()
		if err != nil {
			s.respondServiceError(w, "save document failed", err)
			return
		}
		resp.Files = append(resp.Files, path)
	}
	s.logger.Info("documents uploaded", zap.Int("files", len(resp.Files)), zap.String("kind", string(kind)))

	if r.FormValue("rebuild") != "false" {
		report, err := s.backend.Rebuild(r.Context(), kind)
		if err != nil {
			s.respondServiceError(w, "rebuild after upload failed", err)
			return
		}
		resp.Report = report
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.ClearDocuments(); err != nil {
		s.respondServiceError(w, "clear documents failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	kind := models.IndexKind(chi.URLParam(r, "kind"))
	report, err := s.backend.Rebuild(r.Context(), kind)
	if err != nil {
		s.respondServiceError(w, "rebuild failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.Status()
	if err != nil {
		s.respondServiceError(w, "status failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyQuery),
		errors.Is(err, models.ErrUnknownIndexKind),
		errors.Is(err, service.ErrInvalidFilename):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEngineNotReady),
		errors.Is(err, query.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) respondServiceError(w http.ResponseWriter, msg string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, code, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
