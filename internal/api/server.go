// internal/api/server.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/rainbowcity/dialogue/internal/engine"
	"github.com/rainbowcity/dialogue/internal/push"
	"github.com/rainbowcity/dialogue/internal/telemetry"
	"github.com/rainbowcity/dialogue/internal/types"
)

// Server is the HTTP surface of the orchestration engine: dialogue CRUD,
// message submission, and the websocket subscription endpoint.
type Server struct {
	engine *engine.Engine
	stores types.Stores
	ws     http.Handler
	logger *zap.Logger
	mux    *http.ServeMux
}

func NewServer(eng *engine.Engine, stores types.Stores, hub *push.Hub, logger *zap.Logger) *Server {
	s := &Server{
		engine: eng,
		stores: stores,
		ws:     push.NewWSHandler(hub, stores.Dialogues, logger),
		logger: telemetry.Component(logger, "api"),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/dialogues", s.handleCreateDialogue)
	s.mux.HandleFunc("GET /api/dialogues", s.handleListDialogues)
	s.mux.HandleFunc("GET /api/dialogues/{id}", s.handleGetDialogue)
	s.mux.HandleFunc("DELETE /api/dialogues/{id}", s.handleCloseDialogue)
	s.mux.HandleFunc("GET /api/dialogues/{id}/messages", s.handleListMessages)
	s.mux.HandleFunc("POST /api/messages", s.handlePostMessage)
	s.mux.Handle("GET /ws", s.ws)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createDialogueRequest is the JSON body for POST /api/dialogues. Which
// participant fields matter depends on the dialogue type.
type createDialogueRequest struct {
	DialogueType string         `json:"dialogue_type"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	HumanID      string         `json:"human_id"`
	SecondHuman  string         `json:"second_human_id"`
	AgentID      string         `json:"agent_id"`
	AgentIDs     []string       `json:"agent_ids"`
	Members      []string       `json:"members"`
	Humans       []string       `json:"humans"`
	Agents       []string       `json:"agents"`
	Metadata     map[string]any `json:"metadata"`
}

func (s *Server) handleCreateDialogue(w http.ResponseWriter, r *http.Request) {
	var req createDialogueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	in := engine.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	ctx := r.Context()

	var d *types.Dialogue
	var err error
	switch types.DialogueType(req.DialogueType) {
	case types.DialogueHumanAI:
		d, err = s.engine.CreateHumanAI(ctx, req.HumanID, req.AgentID, in)
	case types.DialogueAISelf:
		d, err = s.engine.CreateAISelf(ctx, req.AgentID, in)
	case types.DialogueAIAI:
		d, err = s.engine.CreateAIAI(ctx, req.AgentIDs, in)
	case types.DialogueHumanHumanPrivate:
		d, err = s.engine.CreateHumanHumanPrivate(ctx, req.HumanID, req.SecondHuman, in)
	case types.DialogueHumanHumanGroup:
		d, err = s.engine.CreateHumanHumanGroup(ctx, req.Members, in)
	case types.DialogueHumanAIGroup:
		d, err = s.engine.CreateHumanAIGroup(ctx, req.Humans, req.Agents, in)
	case types.DialogueAIMultiHuman:
		d, err = s.engine.CreateAIMultiHuman(ctx, req.AgentID, req.Humans, in)
	default:
		writeError(w, http.StatusBadRequest, "unknown dialogue_type")
		return
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDialogues(w http.ResponseWriter, r *http.Request) {
	var (
		dialogues []*types.Dialogue
		err       error
	)
	if r.URL.Query().Get("active") == "true" {
		dialogues, err = s.stores.Dialogues.Active(r.Context())
	} else {
		dialogues, err = s.stores.Dialogues.List(r.Context())
	}
	if err != nil {
		s.logger.Error("list dialogues failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if dialogues == nil {
		dialogues = []*types.Dialogue{}
	}
	writeJSON(w, http.StatusOK, dialogues)
}

func (s *Server) handleGetDialogue(w http.ResponseWriter, r *http.Request) {
	d, err := s.stores.Dialogues.Get(r.Context(), types.DialogueID(r.PathValue("id")))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCloseDialogue(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CloseDialogue(r.Context(), types.DialogueID(r.PathValue("id"))); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := types.DialogueID(r.PathValue("id"))
	if _, err := s.stores.Dialogues.Get(r.Context(), id); err != nil {
		s.writeEngineError(w, err)
		return
	}

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, err := s.stores.Messages.ByDialogue(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("list messages failed",
			zap.String("dialogue_id", string(id)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// postMessageRequest is the JSON body for POST /api/messages.
type postMessageRequest struct {
	DialogueID  string         `json:"dialogue_id"`
	SenderID    string         `json:"sender_id"`
	Role        string         `json:"role"`
	ContentType string         `json:"content_type"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata"`
}

// handlePostMessage accepts a message for processing. The default is
// asynchronous: the message is queued on its dialogue's lane and 202 is
// returned, with the reply arriving over the websocket. sync=true processes
// inline and returns the outcome.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.DialogueID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "dialogue_id and content are required")
		return
	}

	in := &types.Inbound{
		DialogueID:  types.DialogueID(req.DialogueID),
		SenderID:    req.SenderID,
		Role:        types.Role(req.Role),
		ContentType: types.ContentType(req.ContentType),
		Content:     req.Content,
		Metadata:    req.Metadata,
	}

	if r.URL.Query().Get("sync") == "true" {
		out, err := s.engine.ProcessMessage(r.Context(), in)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"reply":   out.Reply,
			"relayed": out.Relayed,
		})
		return
	}

	if err := s.engine.Submit(in, nil); err != nil {
		s.logger.Error("submit failed",
			zap.String("dialogue_id", req.DialogueID),
			zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// writeEngineError maps the domain sentinels onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, types.ErrPrecondition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, types.ErrConflictInFlight):
		writeError(w, http.StatusConflict, "exchange already in flight")
	case errors.Is(err, types.ErrCapability):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
