package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"schoolcal/internal/config"
	"schoolcal/internal/layout"
	appLog "schoolcal/internal/log"
	"schoolcal/internal/model"
	"schoolcal/internal/store"
)

const maxRequestBody = 4 << 20

// Server exposes layouts computed from the feed store over HTTP.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	engine  *layout.Engine
	loc     *time.Location
	now     func() time.Time
	metrics http.Handler
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithClock overrides the clock used to resolve "today".
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st *store.Store, engine *layout.Engine, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		store:  st,
		engine: engine,
		loc:    cfg.Location(),
		now:    time.Now,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run listens on the configured address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down gracefully. The
// listener is owned by Serve from then on.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String(), "basic_auth", s.basicAuthEnabled())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SupportsCalendarView reports whether /calendar can render view.
func SupportsCalendarView(view string) bool {
	return view == "day" || view == "week"
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/layout", s.handleLayout)
	s.mux.HandleFunc("POST /api/layout", s.handleLayoutPost)
	s.mux.HandleFunc("GET /calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="schoolcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// planConfig returns the configured plan bounds, zero when unset.
func (s *Server) planConfig() (time.Time, time.Time) {
	start, end, err := s.cfg.PlanRange(s.loc)
	if err != nil {
		appLog.Error("invalid plan range; recurrence disabled", err)
		return time.Time{}, time.Time{}
	}
	return start, end
}

// layoutResponse is the JSON shape of both /api/layout endpoints.
type layoutResponse struct {
	View              string             `json:"view,omitempty"`
	RangeStart        *time.Time         `json:"range_start,omitempty"`
	RangeEnd          *time.Time         `json:"range_end,omitempty"`
	TimeZone          string             `json:"timezone"`
	WeekStart         string             `json:"week_start,omitempty"`
	MaxVisibleColumns int                `json:"max_visible_columns"`
	UpdatedAt         *time.Time         `json:"updated_at,omitempty"`
	Events            []model.Event      `json:"events"`
	Assignments       []model.Assignment `json:"assignments"`
	Overflows         []model.Overflow   `json:"overflows"`
	Clusters          int                `json:"clusters"`
	Dropped           []layout.Dropped   `json:"dropped,omitempty"`
}

func newLayoutResponse(res layout.Result) layoutResponse {
	resp := layoutResponse{
		Events:      res.Events,
		Assignments: res.Assignments,
		Overflows:   res.Overflows,
		Clusters:    res.Clusters,
		Dropped:     res.Dropped,
	}
	if resp.Overflows == nil {
		resp.Overflows = []model.Overflow{}
	}
	return resp
}

// viewLayout computes the layout of the store snapshot for a view.
func (s *Server) viewLayout(view, date string) (layoutResponse, error) {
	day, err := parseDate(date, s.loc, s.now())
	if err != nil {
		return layoutResponse{}, err
	}
	start, end, err := viewWindow(view, day, s.cfg.WeekStart)
	if err != nil {
		return layoutResponse{}, err
	}

	planStart, planEnd := s.planConfig()
	snap := s.store.Snapshot()
	maxCols := s.cfg.MaxVisibleColumns(view)

	res := s.engine.Compute(snap.Events, layout.Config{
		PlanStart:         planStart,
		PlanEnd:           planEnd,
		WindowStart:       start,
		WindowEnd:         end,
		MaxVisibleColumns: maxCols,
		View:              view,
	})

	resp := newLayoutResponse(res)
	resp.View = view
	resp.RangeStart = &start
	resp.RangeEnd = &end
	resp.TimeZone = s.loc.String()
	resp.WeekStart = s.cfg.WeekStart
	resp.MaxVisibleColumns = maxCols
	if !snap.UpdatedAt.IsZero() {
		resp.UpdatedAt = &snap.UpdatedAt
	}
	return resp, nil
}

// WriteLayout writes the layout of a view as indented JSON, as served by
// GET /api/layout.
func (s *Server) WriteLayout(w io.Writer, view, date string) error {
	resp, err := s.viewLayout(view, date)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// handleLayout serves GET /api/layout?view=week&date=2026-10-19.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := q.Get("view")
	if view == "" {
		view = "week"
	}

	resp, err := s.viewLayout(view, q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents serves GET /api/events?from=YYYY-MM-DD&to=YYYY-MM-DD, the
// expanded feed instances overlapping [from, to] (to inclusive).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"), s.loc, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	to := from
	if raw := q.Get("to"); raw != "" {
		if to, err = parseDate(raw, s.loc, s.now()); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
	}
	start, _, _ := viewWindow("day", from, s.cfg.WeekStart)
	_, end, _ := viewWindow("day", to, s.cfg.WeekStart)
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	planStart, planEnd := s.planConfig()
	res := s.engine.Compute(s.store.Snapshot().Events, layout.Config{
		PlanStart:   planStart,
		PlanEnd:     planEnd,
		WindowStart: start,
		WindowEnd:   end,
		View:        "events",
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"range_start": start,
		"range_end":   end,
		"events":      res.Events,
	})
}

// entryDTO is an upstream timetable entry as posted to /api/layout.
// Times are strings so that unparsable values can be dropped per entry
// instead of failing the whole request.
type entryDTO struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Kind        string   `json:"kind"`
	PeriodType  string   `json:"period_type"`
	IsRecurring bool     `json:"is_recurring"`
	Recurrence  string   `json:"recurrence"`
	RRule       string   `json:"rrule"`
	ExDates     []string `json:"exdates"`
	Room        string   `json:"room"`
	Teacher     string   `json:"teacher"`
	Class       string   `json:"class"`
	Subject     string   `json:"subject"`
}

type layoutRequest struct {
	Events            []entryDTO `json:"events"`
	PlanStart         string     `json:"plan_start"`
	PlanEnd           string     `json:"plan_end"`
	WindowStart       string     `json:"window_start"`
	WindowEnd         string     `json:"window_end"`
	View              string     `json:"view"`
	MaxVisibleColumns *int       `json:"max_visible_columns"`
}

func (e entryDTO) toEvent(loc *time.Location) model.Event {
	kind := model.ClassifyKind(e.PeriodType, e.Title)
	if e.Kind != "" {
		if k, err := model.ParseKind(e.Kind); err == nil {
			kind = k
		}
	}
	ev := model.Event{
		ID:    e.ID,
		Title: e.Title,
		Start: parseInstant(e.Start, loc),
		End:   parseInstant(e.End, loc),
		Kind:  kind,
		Meta: model.Metadata{
			Room:    e.Room,
			Teacher: e.Teacher,
			Class:   e.Class,
			Subject: e.Subject,
		},
	}
	if e.IsRecurring && (e.Recurrence == "" || e.Recurrence == string(model.RecurrenceWeekly)) {
		ev.IsRecurring = true
		ev.Recurrence = model.RecurrenceWeekly
		ev.DayOfWeek = ev.Start.Weekday()
		ev.Rule = e.RRule
		for _, raw := range e.ExDates {
			if t := parseInstant(raw, loc); !t.IsZero() {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	return ev
}

// handleLayoutPost lays out caller-supplied entries without touching the
// store.
func (s *Server) handleLayoutPost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var req layoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	events := make([]model.Event, 0, len(req.Events))
	for _, e := range req.Events {
		events = append(events, e.toEvent(s.loc))
	}

	maxCols := s.cfg.MaxVisibleColumns(req.View)
	if req.MaxVisibleColumns != nil {
		maxCols = *req.MaxVisibleColumns
	}

	res := s.engine.Compute(events, layout.Config{
		PlanStart:         parseInstant(req.PlanStart, s.loc),
		PlanEnd:           parseInstant(req.PlanEnd, s.loc),
		WindowStart:       parseInstant(req.WindowStart, s.loc),
		WindowEnd:         parseInstant(req.WindowEnd, s.loc),
		MaxVisibleColumns: maxCols,
		View:              req.View,
	})

	resp := newLayoutResponse(res)
	resp.View = req.View
	resp.TimeZone = s.loc.String()
	resp.MaxVisibleColumns = maxCols
	writeJSON(w, http.StatusOK, resp)
}

// handlePreview serves the last captured calendar snapshot.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.PreviewPath)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
