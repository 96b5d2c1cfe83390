// Package server exposes the transcription pipeline and stored transcripts over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ciricc/court-transcriber/internal/audio"
	"github.com/ciricc/court-transcriber/internal/export"
	"github.com/ciricc/court-transcriber/internal/health"
	"github.com/ciricc/court-transcriber/internal/live"
	"github.com/ciricc/court-transcriber/internal/model/transcript"
	"github.com/ciricc/court-transcriber/internal/pipeline"
	"github.com/ciricc/court-transcriber/internal/storage"
	"github.com/ciricc/court-transcriber/internal/transcriber"
)

const (
	// HeaderUser names the caller recorded in the audit trail.
	HeaderUser = "X-User"
	// HeaderRole selects the listing view; judge and admin see full metadata.
	HeaderRole = "X-Role"

	anonymousUser = "anonymous"
	roleClerk     = "clerk"

	defaultMaxUpload = 512 << 20
	multipartMemory  = 32 << 20

	liveWriteTimeout = 10 * time.Second
)

// Transcripts is the read and delete side of the transcript store.
type Transcripts interface {
	Get(ctx context.Context, id string) (*transcript.Transcript, error)
	Delete(ctx context.Context, id, user string) error
	List(ctx context.Context, opts storage.ListOptions) ([]transcript.Summary, error)
}

// Viewers subscribes to live edits of one transcript.
type Viewers interface {
	Subscribe(transcriptID string) (<-chan live.Message, func())
}

type Server struct {
	pipeline    pipeline.Pipeline
	transcripts Transcripts
	viewers     Viewers
	health      *health.Checker
	gatherer    prometheus.Gatherer
	maxUpload   int64
	logger      *slog.Logger
}

func NewServer(
	p pipeline.Pipeline,
	transcripts Transcripts,
	viewers Viewers,
	checker *health.Checker,
	gatherer prometheus.Gatherer,
	maxUpload int64,
	logger *slog.Logger,
) *Server {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Server{
		pipeline:    p,
		transcripts: transcripts,
		viewers:     viewers,
		health:      checker,
		gatherer:    gatherer,
		maxUpload:   maxUpload,
		logger:      logger.With("component", "http"),
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/transcripts", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Get("/export", s.handleExport)
			r.Get("/live", s.handleLive)
			r.Patch("/segments/{segmentID}", s.handleEditSegment)
		})
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	code := http.StatusOK
	if !s.health.Serving() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, s.health.Snapshot())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadBody, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, errMissingFile)
		return
	}
	defer file.Close()

	buf, err := decodeUpload(file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	t, err := s.pipeline.Run(r.Context(), pipeline.Request{
		Audio:      buf,
		SourceFile: header.Filename,
		CaseID:     r.FormValue("case_id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// decodeUpload spools the upload to a temporary file and decodes it at the
// recognizer's sample rate.
func decodeUpload(src io.Reader) (audio.Buffer, error) {
	f, err := os.CreateTemp("", "court-upload-*.wav")
	if err != nil {
		return audio.Buffer{}, err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		return audio.Buffer{}, fmt.Errorf("%w: %w", errBadBody, err)
	}

	buf, err := audio.Decode(f)
	if err != nil {
		return audio.Buffer{}, err
	}
	return audio.Resample(buf, transcriber.SampleRate)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.transcripts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Clerks see metadata only.
	if r.Header.Get(HeaderRole) == roleClerk {
		t.Segments = []transcript.Segment{}
	}

	writeJSON(w, http.StatusOK, t)
}

type editSegmentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleEditSegment(w http.ResponseWriter, r *http.Request) {
	var req editSegmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadBody, err))
		return
	}

	err := s.pipeline.EditSegment(r.Context(),
		chi.URLParam(r, "id"),
		chi.URLParam(r, "segmentID"),
		req.Text,
		userOf(r),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.transcripts.Delete(r.Context(), chi.URLParam(r, "id"), userOf(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	list, err := s.transcripts.List(r.Context(), storage.ListOptions{
		CaseID: q.Get("case_id"),
		Role:   r.Header.Get(HeaderRole),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []transcript.Summary{}
	}

	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatText
	}

	t, err := s.transcripts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var b bytes.Buffer
	if err := export.Write(&b, t, format); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", t.ID+"."+string(format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.Bytes())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleLive streams segment edits of one transcript over a websocket until the
// viewer disconnects.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.transcripts.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	msgs, unsubscribe := s.viewers.Subscribe(id)
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.DebugContext(r.Context(), "websocket write failed", "transcript", id, "error", err)
				return
			}
		}
	}
}

func userOf(r *http.Request) string {
	if u := r.Header.Get(HeaderUser); u != "" {
		return u
	}
	return anonymousUser
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", errBadQuery, v)
	}
	return n, nil
}
