package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/PabloGalante/v2-coach/internal/app/coach"
	"github.com/PabloGalante/v2-coach/internal/app/tasks"
	"github.com/PabloGalante/v2-coach/internal/app/timeline"
	"github.com/PabloGalante/v2-coach/internal/app/workspace"
	"github.com/PabloGalante/v2-coach/internal/domain"
	"github.com/PabloGalante/v2-coach/internal/observability"
)

type Server struct {
	reg          *workspace.Registry
	client       domain.CoachClient
	loc          *time.Location
	now          func() time.Time
	replyTimeout time.Duration
}

// Options tune the server. ReplyTimeout bounds a POST /coach call to the
// completion service; zero leaves it to the request context.
type Options struct {
	Location     *time.Location
	Now          func() time.Time
	ReplyTimeout time.Duration
}

// NewServer exposes the per-user workspaces and the stateless coach
// endpoint. client backs POST /coach only.
func NewServer(reg *workspace.Registry, client domain.CoachClient, opts Options) http.Handler {
	s := &Server{reg: reg, client: client, loc: opts.Location, now: opts.Now, replyTimeout: opts.ReplyTimeout}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /coach", s.handleStatelessCoach)
	mux.HandleFunc("GET /users", s.handleListUsers)

	mux.HandleFunc("GET /users/{userID}/tasks", s.handleListTasks)
	mux.HandleFunc("POST /users/{userID}/tasks", s.handleAddTask)
	mux.HandleFunc("DELETE /users/{userID}/tasks", s.handleResetTasks)
	mux.HandleFunc("PATCH /users/{userID}/tasks/{taskID}", s.handleEditTask)
	mux.HandleFunc("DELETE /users/{userID}/tasks/{taskID}", s.handleDeleteTask)
	mux.HandleFunc("POST /users/{userID}/tasks/{taskID}/toggle", s.handleToggleTask)
	mux.HandleFunc("POST /users/{userID}/tasks/{taskID}/victory", s.handleVictory)
	mux.HandleFunc("GET /users/{userID}/sections", s.handleSections)

	mux.HandleFunc("GET /users/{userID}/progress", s.handleProgress)
	mux.HandleFunc("GET /users/{userID}/timeline", s.handleTimeline)

	mux.HandleFunc("GET /users/{userID}/coach", s.handleCoachView)
	mux.HandleFunc("POST /users/{userID}/coach/messages", s.handleSendMessage)
	mux.HandleFunc("POST /users/{userID}/coach/failure", s.handleReportFailure)
	mux.HandleFunc("POST /users/{userID}/coach/timer/{action}", s.handleTimer)

	return chainMiddlewares(mux, withCORS, withLogging, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type addTaskRequest struct {
	Title    string `json:"title"`
	Priority string `json:"priority,omitempty"`
	Category string `json:"category,omitempty"`
	Type     string `json:"type"`
	IsHabit  bool   `json:"is_habit,omitempty"`

	Period domain.Period `json:"period"`
	// CurrentPeriod fills Period with the bounds of the current day,
	// week, month or year.
	CurrentPeriod bool `json:"current_period,omitempty"`
}

type editTaskRequest struct {
	Title    *string `json:"title,omitempty"`
	Priority *string `json:"priority,omitempty"`
}

type victoryRequest struct {
	Reflection string `json:"reflection"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type statelessCoachRequest struct {
	Message   string           `json:"message"`
	UserStats domain.UserStats `json:"userStats"`
}

type statelessCoachResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type taskResponse struct {
	domain.Task
	Status string `json:"status"`
}

type sectionResponse struct {
	Type      domain.TaskType `json:"type"`
	Total     int             `json:"total"`
	Pending   []taskResponse  `json:"pending"`
	Completed []taskResponse  `json:"completed"`
}

type timelineDayResponse struct {
	Date  string         `json:"date"`
	Today bool           `json:"today"`
	Tasks []taskResponse `json:"tasks"`
}

type sendMessageResponse struct {
	UserMessage  domain.CoachMessage `json:"user_message"`
	CoachMessage domain.CoachMessage `json:"coach_message"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatelessCoach answers 200 even on failure so clients can
// always render the message.
func (s *Server) handleStatelessCoach(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context())

	var req statelessCoachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("coach request rejected", "error", err)
		writeJSON(w, http.StatusOK, statelessCoachResponse{Success: false, Message: coach.FallbackReply})
		return
	}

	ctx := r.Context()
	if s.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.replyTimeout)
		defer cancel()
	}

	reply, err := s.client.GenerateReply(ctx, req.Message, req.UserStats)
	if err != nil || reply == "" {
		if err == nil {
			err = errors.New("empty reply")
		}
		log.Warn("coach reply failed, using fallback", "error", &domain.CompletionServiceError{Err: err})
		writeJSON(w, http.StatusOK, statelessCoachResponse{Success: false, Message: coach.FallbackReply})
		return
	}

	writeJSON(w, http.StatusOK, statelessCoachResponse{Success: true, Message: reply})
}

// handleListUsers lists the users with an open workspace.
func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	users := s.reg.Users()
	out := make([]string, 0, len(users))
	for _, id := range users {
		out = append(out, string(id))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var list []domain.Task
	if typ := r.URL.Query().Get("type"); typ != "" {
		if !domain.TaskType(typ).Valid() {
			badRequest(w, "unknown task type")
			return
		}
		list = ws.Tasks.ListByType(domain.TaskType(typ))
	} else {
		list = ws.Tasks.List()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":   toTaskResponses(list),
		"pending": ws.Tasks.PendingCount(),
	})
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var req addTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	typ := domain.TaskType(req.Type)
	period := req.Period
	if req.CurrentPeriod {
		p, err := tasks.CurrentPeriod(typ, s.now(), s.loc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		period = p
	}

	task, err := ws.Tasks.AddTask(r.Context(), tasks.AddInput{
		Title:    req.Title,
		Priority: domain.Priority(req.Priority),
		Category: domain.Category(req.Category),
		Type:     typ,
		Period:   period,
		IsHabit:  req.IsHabit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(task))
}

func (s *Server) handleEditTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var req editTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	in := tasks.EditInput{Title: req.Title}
	if req.Priority != nil {
		p := domain.Priority(*req.Priority)
		in.Priority = &p
	}

	task, err := ws.Tasks.EditTask(r.Context(), domain.TaskID(r.PathValue("taskID")), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	task, err := ws.Tasks.ToggleCompletion(r.Context(), domain.TaskID(r.PathValue("taskID")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) handleVictory(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var req victoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	task, err := ws.Tasks.RecordVictory(r.Context(), domain.TaskID(r.PathValue("taskID")), req.Reflection)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	if err := ws.Tasks.DeleteTask(r.Context(), domain.TaskID(r.PathValue("taskID"))); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetTasks(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	if err := ws.Tasks.ResetAll(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	sections := ws.Tasks.Sections()
	out := make([]sectionResponse, 0, len(sections))
	for _, sec := range sections {
		out = append(out, sectionResponse{
			Type:      sec.Type,
			Total:     sec.Total(),
			Pending:   toTaskResponses(sec.Pending),
			Completed: toTaskResponses(sec.Completed),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": out})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Progress.Progress())
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"days": toTimelineResponse(ws.Timeline.GetTimeline(r.Context(), limit)),
	})
}

func (s *Server) handleCoachView(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Coach.View())
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	out, err := ws.Coach.SendMessage(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		UserMessage:  out.UserMessage,
		CoachMessage: out.CoachMessage,
	})
}

func (s *Server) handleReportFailure(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	msg, err := ws.Coach.ReportFailure(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspace(w, r)
	if !ok {
		return
	}

	switch r.PathValue("action") {
	case "start":
		msg, err := ws.Coach.StartFocusTimer(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"timer": ws.Coach.Timer(), "message": msg})
		return
	case "pause":
		ws.Coach.PauseTimer()
	case "resume":
		ws.Coach.ResumeTimer()
	case "reset":
		ws.Coach.ResetTimer()
	default:
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timer": ws.Coach.Timer()})
}

// ─────────────────────────────────────────────
// Workspace Helpers
// ─────────────────────────────────────────────

func (s *Server) workspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, err := s.reg.Get(r.Context(), domain.UserID(r.PathValue("userID")))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return ws, true
}

func toTaskResponse(t domain.Task) taskResponse {
	return taskResponse{Task: t, Status: t.StatusLabel()}
}

func toTaskResponses(list []domain.Task) []taskResponse {
	out := make([]taskResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTaskResponse(t))
	}
	return out
}

func toTimelineResponse(days []timeline.Day) []timelineDayResponse {
	out := make([]timelineDayResponse, 0, len(days))
	for _, d := range days {
		out = append(out, timelineDayResponse{Date: d.Date, Today: d.Today, Tasks: toTaskResponses(d.Tasks)})
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *domain.ValidationError
		nerr *domain.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		badRequest(w, verr.Error())
	case errors.As(err, &nerr):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nerr.Error()})
	case errors.Is(err, coach.ErrReplyPending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, coach.ErrSessionClosed):
		writeJSON(w, http.StatusGone, map[string]string{"error": err.Error()})
	default:
		internalError(w, r, err)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}
