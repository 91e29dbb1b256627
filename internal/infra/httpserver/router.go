package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appjobs "github.com/bryanwahyu/automaton-review/internal/application/jobs"
	appprojects "github.com/bryanwahyu/automaton-review/internal/application/projects"
	"github.com/bryanwahyu/automaton-review/internal/domain/apperr"
	domainjobs "github.com/bryanwahyu/automaton-review/internal/domain/jobs"
	"github.com/bryanwahyu/automaton-review/internal/middleware"
)

const defaultMaxUpload = 50 << 20

var uploadContentTypes = map[string]bool{
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/octet-stream":     true,
}

type Options struct {
	Projects *appprojects.Service
	Jobs     *appjobs.Service
	Logger   *slog.Logger

	// Verifier nil disables authentication.
	Verifier       middleware.TokenVerifier
	RateLimiter    *middleware.RateLimiter
	Metrics        middleware.HTTPRecorder
	MetricsHandler http.Handler
	Checkers       map[string]middleware.HealthChecker

	MaxUploadBytes int64
	// UploadDir holds uploads while they are extracted; empty means os.TempDir.
	UploadDir    string
	AllowedHosts []string
}

type Router struct {
	opts Options
	log  *slog.Logger
}

func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	r := &Router{opts: opts, log: opts.Logger}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.Logging(opts.Logger))
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Metrics(opts.Metrics))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	mux.Use(middleware.BearerAuth(opts.Verifier))
	mux.Use(middleware.RateLimit(opts.RateLimiter))

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.ReadinessHandler(opts.Checkers))
	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	}

	mux.Get("/me", r.wrap(r.handleMe))
	mux.Route("/projects", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleCreateProject))
		rt.Get("/", r.wrap(r.handleListProjects))
		rt.Post("/github", r.wrap(r.handleImportGitHub))
		rt.Get("/{id}", r.wrap(r.handleGetProject))
		rt.Post("/{id}/upload", r.wrap(r.handleUpload))
		rt.Get("/{id}/files", r.wrap(r.handleGetFile))
	})
	mux.Route("/jobs", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleCreateJob))
		rt.Get("/", r.wrap(r.handleListJobs))
		rt.Get("/{id}", r.wrap(r.handleGetJob))
	})
	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest is a validation failure whose message is safe to return.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status, msg := r.classify(err)
		if status >= 500 {
			r.log.Error("request failed", "path", req.URL.Path, "request_id", chimw.GetReqID(req.Context()), "error", err)
		}
		writeJSON(w, status, map[string]string{"error": msg})
	}
}

func (r *Router) classify(err error) (int, string) {
	var br *badRequest
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, br.msg
	case errors.As(err, &tooBig), errors.Is(err, apperr.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too large"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrInvalidPath):
		return http.StatusBadRequest, "invalid path"
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, apperr.ErrIngestionIncomplete):
		return http.StatusConflict, "project source tree is not uploaded yet"
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperr.ErrTimeout):
		return http.StatusGatewayTimeout, "timed out"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decodeBody(req *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return invalid("invalid JSON body")
	}
	return nil
}

func uid(req *http.Request) string { return middleware.IdentityFrom(req.Context()) }

// pathID reads an id URL parameter; malformed ids cannot exist.
func pathID(req *http.Request, kind string) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateID(kind, id); err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrNotFound, err)
	}
	return id, nil
}

func queryLimit(req *http.Request) int {
	n, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	return middleware.ValidateLimit(n)
}

// GET /me
func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]string{"uid": uid(req)})
}

// POST /projects
// Body: {"name": "...", "source": "upload|git"}
func (r *Router) handleCreateProject(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Name   string `json:"name"`
		Source string `json:"source"`
	}
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	p, err := r.opts.Projects.CreateProject(req.Context(), appprojects.CreateProjectCommand{
		Name:   middleware.SanitizeString(body.Name),
		Source: body.Source,
		Owner:  uid(req),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"source":    p.Source,
		"createdAt": p.CreatedAt,
	})
}

// GET /projects?limit=
func (r *Router) handleListProjects(w http.ResponseWriter, req *http.Request) error {
	items, err := r.opts.Projects.ListProjects(req.Context(), uid(req), queryLimit(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GET /projects/{id}
func (r *Router) handleGetProject(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "project id")
	if err != nil {
		return err
	}
	p, err := r.opts.Projects.GetProject(req.Context(), id, uid(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, p)
}

// POST /projects/{id}/upload (multipart, field "file")
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "project id")
	if err != nil {
		return err
	}
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUploadBytes)
	file, header, err := req.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return invalid("multipart field \"file\" is required")
	}
	defer file.Close()
	if !uploadContentTypes[header.Header.Get("Content-Type")] {
		return invalid("Upload a .zip of your project.")
	}

	tmp, err := os.CreateTemp(r.opts.UploadDir, "upload-*.zip")
	if err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}

	n, err := r.opts.Projects.Upload(req.Context(), id, uid(req), tmp.Name())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"ok": true, "projectId": id, "files": n})
}

// POST /projects/github
// Body: {"repoUrl": "https://github.com/o/r", "branch": "main", "name": "..."}
func (r *Router) handleImportGitHub(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		RepoURL string `json:"repoUrl"`
		Branch  string `json:"branch"`
		Name    string `json:"name"`
	}
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateRepoURL(body.RepoURL, r.opts.AllowedHosts); err != nil {
		return invalid("%v", err)
	}
	if err := middleware.ValidateBranch(body.Branch); err != nil {
		return invalid("%v", err)
	}

	res, err := r.opts.Projects.ImportGitHub(req.Context(), appprojects.ImportCommand{
		RepoURL: body.RepoURL,
		Branch:  body.Branch,
		Name:    middleware.SanitizeString(body.Name),
		Owner:   uid(req),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"projectId": res.Project.ID,
		"jobId":     res.Job.ID,
		"status":    res.Job.Status,
	})
}

// GET /projects/{id}/files?path=
func (r *Router) handleGetFile(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "project id")
	if err != nil {
		return err
	}
	f, err := r.opts.Projects.GetFile(req.Context(), id, req.URL.Query().Get("path"), uid(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, f)
}

// POST /jobs
// Body: {"projectId": "<id>"}
func (r *Router) handleCreateJob(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		ProjectID string `json:"projectId"`
	}
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	if body.ProjectID == "" {
		return invalid("projectId is required")
	}
	if err := middleware.ValidateID("projectId", body.ProjectID); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrNotFound, err)
	}
	j, err := r.opts.Jobs.CreateJob(req.Context(), body.ProjectID, uid(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, j)
}

// GET /jobs?projectId=&limit=
func (r *Router) handleListJobs(w http.ResponseWriter, req *http.Request) error {
	items, err := r.opts.Jobs.ListJobs(req.Context(), req.URL.Query().Get("projectId"), uid(req), queryLimit(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GET /jobs/{id}
func (r *Router) handleGetJob(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "job id")
	if err != nil {
		return err
	}
	j, err := r.opts.Jobs.GetJob(req.Context(), domainjobs.ID(id), uid(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, j)
}
