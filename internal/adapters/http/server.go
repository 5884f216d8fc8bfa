package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"previa/api"
	"previa/internal/domain"
	"previa/internal/ports"
	"previa/internal/services/aggregator"
	"previa/internal/services/alertbrowser"
	chatsvc "previa/internal/services/chat"
	"previa/internal/services/watchlists"
	"previa/internal/workers/scansession"
)

// MaxUploadBytes bounds an uploaded entity file.
const MaxUploadBytes = 10 << 20

// ScanService runs dashboard scans.
type ScanService interface {
	Start(ctx context.Context, owner string, file ports.Upload) (scansession.Snapshot, error)
	Status(ctx context.Context, id string) (scansession.Snapshot, error)
	Cancel(ctx context.Context, id string) error
	Result(ctx context.Context, id string) (aggregator.Result, error)
	Alerts(ctx context.Context, id string, f alertbrowser.Filter, order alertbrowser.Order) ([]domain.Alert, error)
	Rows(ctx context.Context, id string) ([]domain.TableRow, error)
}

// WatchlistService serves watchlist entity tables.
type WatchlistService interface {
	List(ctx context.Context, watchlistID int64, opts watchlists.ListOptions) (watchlists.Listing, error)
	BeginEdit(ctx context.Context, entityID int64) error
	CancelEdit(ctx context.Context, entityID int64) error
	SaveTag(ctx context.Context, entityID int64, tag string) (domain.EntityRecord, error)
	AddEntities(ctx context.Context, watchlistID int64, entities []domain.EntityInput) (int, error)
}

// ChatService serves the scan parts of the chat panel.
type ChatService interface {
	Suggest(reply string) chatsvc.Reply
	Attach(ctx context.Context, owner string, file ports.Upload) (chatsvc.Message, error)
}

type Server struct {
	scans      ScanService
	watchlists WatchlistService
	chat       ChatService
	log        *slog.Logger

	// AttachTimeout bounds how long POST /chat/attach waits for its message.
	AttachTimeout time.Duration
}

// New returns a Server. watchlists may be nil when no database is configured;
// its routes then answer 503.
func New(scans ScanService, wl WatchlistService, chat ChatService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{scans: scans, watchlists: wl, chat: chat, log: logger, AttachTimeout: 5 * time.Minute}
}

var _ ServerInterface = (*Server)(nil)

// Routes returns a chi.Router with every operation mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	return HandlerFromMux(s, r, s.fail)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// watchlistsReady answers 503 when no database backs the watchlist routes.
func (s *Server) watchlistsReady(w http.ResponseWriter) bool {
	if s.watchlists == nil {
		writeError(w, http.StatusServiceUnavailable, "watchlists need a database")
		return false
	}
	return true
}

func (s *Server) GetHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(api.Spec)
}

// readUpload reads the multipart "file" field and the optional "owner" field.
func readUpload(w http.ResponseWriter, r *http.Request) (ports.Upload, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return ports.Upload{}, "", &runtimeError{code: http.StatusBadRequest, msg: "expected multipart form with a file field"}
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return ports.Upload{}, "", &runtimeError{code: http.StatusBadRequest, msg: "missing file"}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return ports.Upload{}, "", err
	}
	up := ports.Upload{Filename: hdr.Filename, ContentType: hdr.Header.Get("Content-Type"), Data: data}
	return up, strings.TrimSpace(r.FormValue("owner")), nil
}

func (s *Server) StartScan(w http.ResponseWriter, r *http.Request) {
	up, owner, err := readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	snap, err := s.scans.Start(r.Context(), owner, up)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (s *Server) GetScan(w http.ResponseWriter, r *http.Request, id string) {
	snap, err := s.scans.Status(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) CancelScan(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.scans.Cancel(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type alertsResponse struct {
	Alerts   []domain.Alert          `json:"alerts"`
	Articles []domain.Article        `json:"articles"`
	Counts   map[domain.Severity]int `json:"counts"`
	Total    int                     `json:"total"`
	Flagged  int                     `json:"flagged"`
}

func (s *Server) GetScanAlerts(w http.ResponseWriter, r *http.Request, id string, params GetScanAlertsParams) {
	f, order, err := alertQuery(params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.scans.Result(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	alerts, err := s.scans.Alerts(r.Context(), id, f, order)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alertsResponse{
		Alerts:   alerts,
		Articles: alertbrowser.New(res.Alerts).Articles(),
		Counts:   res.Counts,
		Total:    res.Total,
		Flagged:  res.Flagged,
	})
}

func (s *Server) GetScanRows(w http.ResponseWriter, r *http.Request, id string) {
	rows, err := s.scans.Rows(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) ListWatchlistEntities(w http.ResponseWriter, r *http.Request, id int64, params ListWatchlistEntitiesParams) {
	if !s.watchlistsReady(w) {
		return
	}
	opts, err := listOptions(params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	listing, err := s.watchlists.List(r.Context(), id, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

type addEntitiesRequest struct {
	Entities []domain.EntityInput `json:"entities"`
}

func (s *Server) AddWatchlistEntities(w http.ResponseWriter, r *http.Request, id int64) {
	if !s.watchlistsReady(w) {
		return
	}
	var body addEntitiesRequest
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.watchlists.AddEntities(r.Context(), id, body.Entities)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"added": n})
}

func (s *Server) BeginTagEdit(w http.ResponseWriter, r *http.Request, id int64) {
	if !s.watchlistsReady(w) {
		return
	}
	if err := s.watchlists.BeginEdit(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) CancelTagEdit(w http.ResponseWriter, r *http.Request, id int64) {
	if !s.watchlistsReady(w) {
		return
	}
	if err := s.watchlists.CancelEdit(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tagRequest struct {
	GroupTag *string `json:"group_tag"`
}

func (s *Server) SaveTag(w http.ResponseWriter, r *http.Request, id int64) {
	if !s.watchlistsReady(w) {
		return
	}
	var body tagRequest
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	tag := ""
	if body.GroupTag != nil {
		tag = *body.GroupTag
	}
	rec, err := s.watchlists.SaveTag(r.Context(), id, tag)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type suggestRequest struct {
	Reply string `json:"reply"`
}

func (s *Server) SuggestAction(w http.ResponseWriter, r *http.Request) {
	var body suggestRequest
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.chat.Suggest(body.Reply))
}

func (s *Server) AttachFile(w http.ResponseWriter, r *http.Request) {
	up, owner, err := readUpload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.AttachTimeout)
	defer cancel()
	msg, err := s.chat.Attach(ctx, owner, up)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &runtimeError{code: http.StatusBadRequest, msg: "invalid JSON body: " + err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// fail maps err to a status code and writes it. Unexpected errors are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err,
			"request_id", middleware.GetReqID(r.Context()))
	}
	writeError(w, code, err.Error())
}

type runtimeError struct {
	code int
	msg  string
}

func (e *runtimeError) Error() string { return e.msg }
