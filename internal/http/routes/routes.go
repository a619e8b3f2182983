package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/coachiq/internal/athlete"
	"github.com/briangreenhill/coachiq/internal/coach"
	"github.com/briangreenhill/coachiq/internal/coachctx"
	appmw "github.com/briangreenhill/coachiq/internal/http/middleware"
	"github.com/briangreenhill/coachiq/internal/jobs"
	"github.com/briangreenhill/coachiq/internal/metrics"
	"github.com/briangreenhill/coachiq/internal/store"
)

const (
	maxBody          = 1 << 20
	defaultMaxTokens = 2000
)

// SnapshotLoader is the read side of *store.Store
type SnapshotLoader interface {
	Load(ctx context.Context, athleteID uuid.UUID, since time.Time) (athlete.Snapshot, error)
}

type Server struct {
	Router    *chi.Mux
	Sess      *scs.SessionManager
	Store     SnapshotLoader
	Assembler *coachctx.Assembler
	Provider  coach.Provider
	Queue     jobs.Enqueuer // nil disables ?async=1
	Metrics   *metrics.Manager
	MaxTokens int
	Log       zerolog.Logger
	now       func() time.Time
}

type ServerOptions struct {
	Sess      *scs.SessionManager
	Store     SnapshotLoader
	Assembler *coachctx.Assembler
	Provider  coach.Provider
	Queue     jobs.Enqueuer
	Metrics   *metrics.Manager
	Gatherer  prometheus.Gatherer
	MaxTokens int
	Logger    zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	s := &Server{
		Router:    r,
		Sess:      opts.Sess,
		Store:     opts.Store,
		Assembler: opts.Assembler,
		Provider:  opts.Provider,
		Queue:     opts.Queue,
		Metrics:   opts.Metrics,
		MaxTokens: opts.MaxTokens,
		Log:       opts.Logger,
		now:       time.Now,
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = defaultMaxTokens
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(s.Log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)
	if s.Metrics != nil {
		r.Use(appmw.Instrument(s.Metrics))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/metrics", func(mr chi.Router) {
		mr.Post("/readiness", s.handleReadiness)
		mr.Post("/workout-load", s.handleWorkoutLoad)
		mr.Get("/acwr", s.handleACWR)
	})

	r.Route("/v1/athletes/{athleteID}", func(ar chi.Router) {
		if s.Sess != nil {
			ar.Use(s.Sess.LoadAndSave, appmw.SessionThread(s.Sess))
		}
		ar.Get("/context", s.handleContext)
		ar.Post("/chat", s.handleChat)
		ar.Post("/chat/stream", s.handleChatStream)
		ar.Post("/workouts", s.handleGenerateWorkout)
		ar.Post("/analysis", s.handleAnalysis)
		ar.Post("/insights", s.handleInsight)
	})

	return s
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, errorBody{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// window reads ?days= on top of the assembler's default window
func (s *Server) window(r *http.Request) (coachctx.Window, error) {
	w := s.Assembler.Window()
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return w, errors.New("days must be an integer")
		}
		w.Days = days
	}
	return w, w.Validate()
}

// loadSnapshot writes the error response itself and returns ok=false on failure
func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request, days int) (athlete.Snapshot, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "athleteID"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid athlete ID")
		return athlete.Snapshot{}, false
	}
	snap, err := s.Store.Load(r.Context(), id, coachctx.WindowStart(s.now(), days))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, "athlete not found")
		return athlete.Snapshot{}, false
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("athlete_id", id.String()).Msg("load snapshot failed")
		s.writeError(w, r, http.StatusInternalServerError, "could not load athlete data")
		return athlete.Snapshot{}, false
	}
	return snap, true
}

// athleteContext loads the athlete and fits the context into the token budget
func (s *Server) athleteContext(w http.ResponseWriter, r *http.Request) (string, bool) {
	win := s.Assembler.Window()
	snap, ok := s.loadSnapshot(w, r, win.Days)
	if !ok {
		return "", false
	}
	opt := s.Assembler.OptimizeForTokenLimit(snap, s.MaxTokens)
	if s.Metrics != nil {
		s.Metrics.HistContextTokens.Observe(float64(opt.Tokens))
	}
	return opt.Text, true
}

func threadID(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return appmw.ThreadID(r.Context())
}
