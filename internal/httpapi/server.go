// Package httpapi is the thin presentation bridge (§6) over the
// orchestration engine: a gorilla/mux command API for createTask/
// getTaskStatus and a gorilla/websocket relay of the event bus. It
// generalizes the teacher's internal/server/server.go router setup and
// internal/server/handlers.go's upgrader/Client pump pair.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/CLIAIMONITOR/orchestrator/internal/events"
	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orchestrator"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
)

const writeWait = 10 * time.Second

// Server is the HTTP/WS presentation bridge in front of one Engine.
type Server struct {
	engine *orchestrator.Engine
	tasks  *repository.TaskRepository
	bus    *events.Bus
	router *mux.Router
	log    *logrus.Entry
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func New(engine *orchestrator.Engine, tasks *repository.TaskRepository, bus *events.Bus) *Server {
	s := &Server{
		engine: engine,
		tasks:  tasks,
		bus:    bus,
		router: mux.NewRouter(),
		log:    logrus.WithField("component", "httpapi"),
	}
	s.routes()
	return s
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) routes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}/resume", s.handleResumeTask).Methods("POST")
	api.HandleFunc("/tasks/{id}/context", s.handleGetContext).Methods("GET")
	api.HandleFunc("/tasks/{id}/context", s.handleUpdateContext).Methods("PUT")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ws/events", s.handleEventStream)
}

type createTaskRequest struct {
	Task      model.Task           `json:"task"`
	Directive model.UserDirective  `json:"directive"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.engine.ExecuteTask(r.Context(), req.Task, req.Directive)
	s.respondResult(w, result)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		CheckpointID string `json:"checkpoint_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	result := s.engine.ResumeTask(r.Context(), id, body.CheckpointID)
	s.respondResult(w, result)
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := s.engine.GetTaskContext(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUpdateContext(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.engine.UpdateTaskContext(r.Context(), id, body.Content)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEventStream upgrades to a websocket and relays every event
// published on the engine's bus to this one subscriber until it
// disconnects.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	target := r.URL.Query().Get("target")
	if target == "" {
		target = "all"
	}
	ch := s.bus.Subscribe(target, nil)
	defer s.bus.Unsubscribe(target, ch)

	for event := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}

type workflowResultDTO struct {
	TaskID    string            `json:"task_id"`
	Status    model.TaskStatus  `json:"status"`
	Proposals []model.Proposal  `json:"proposals,omitempty"`
	Decision  *model.Decision   `json:"decision,omitempty"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func (s *Server) respondResult(w http.ResponseWriter, result orchestrator.WorkflowResult) {
	dto := workflowResultDTO{
		TaskID:    result.TaskID,
		Status:    result.Status,
		Proposals: result.Proposals,
		Decision:  result.Decision,
		ErrorKind: string(result.ErrorKind),
	}
	status := http.StatusOK
	if result.Err != nil {
		dto.Error = result.Err.Error()
		status = http.StatusUnprocessableEntity
	}
	s.respondJSON(w, status, dto)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
