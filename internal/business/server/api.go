package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/bot"
	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/interpreter"
	"github.com/openkcm/bot-flow/internal/serviceerr"
	"github.com/openkcm/bot-flow/internal/session"
)

// BotService is the part of bot.Service the REST API drives.
type BotService interface {
	Trigger(ctx context.Context, req bot.TriggerRequest) (interpreter.RunResult, error)
	Resume(ctx context.Context, botID, sessionID, input string) (interpreter.RunResult, error)
	Drop(ctx context.Context, sessionID string) (session.Session, error)
	Delete(ctx context.Context, sessionID string) error
	Get(ctx context.Context, sessionID string) (session.Session, error)
}

var _ = BotService(&bot.Service{})

// FlowStore is where the REST API reads and edits bot flows.
type FlowStore = flow.Store

type runRequest struct {
	ContactID     string           `json:"contactId"`
	CurrentNodeID string           `json:"currentNodeId"`
	Input         *string          `json:"input"`
	Channel       *session.Channel `json:"channel"`
}

type inputRequest struct {
	Text string `json:"text"`
}

type runResponse struct {
	ExecutedSteps int                    `json:"executedSteps"`
	Status        session.Status         `json:"status"`
	CurrentNodeID string                 `json:"currentNodeId"`
	StopReason    interpreter.StopReason `json:"stopReason"`
	Variables     map[string]any         `json:"variables"`
}

// flowDocument is the wire form of a flow graph, the same shape flow files
// use.
type flowDocument struct {
	BotID string         `json:"botId"`
	Nodes []flow.RawNode `json:"nodes"`
	Edges []flow.Edge    `json:"edges"`
}

type errorResponse struct {
	Error         string `json:"error"`
	ExecutedSteps int    `json:"executedSteps"`
}

type apiServer struct {
	service BotService
	flows   FlowStore
}

func newAPIServer(service BotService, flows FlowStore) *apiServer {
	return &apiServer{service: service, flows: flows}
}

// run handles POST /v1/bots/{botID}/sessions/{sessionID}/run.
func (s *apiServer) run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body runRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req := bot.TriggerRequest{
		BotID:         r.PathValue("botID"),
		SessionID:     r.PathValue("sessionID"),
		ContactID:     body.ContactID,
		CurrentNodeID: body.CurrentNodeID,
		InputText:     body.Input,
	}
	if body.Channel != nil {
		req.Channel = *body.Channel
	}

	res, err := s.service.Trigger(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, toRunResponse(res))
}

// input handles POST /v1/bots/{botID}/sessions/{sessionID}/input.
func (s *apiServer) input(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body inputRequest
	if !decodeBody(w, r, &body) {
		return
	}

	res, err := s.service.Resume(ctx, r.PathValue("botID"), r.PathValue("sessionID"), body.Text)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, toRunResponse(res))
}

func (s *apiServer) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := s.service.Get(ctx, r.PathValue("sessionID"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, sess)
}

func (s *apiServer) dropSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := s.service.Drop(ctx, r.PathValue("sessionID"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, sess)
}

// deleteSession handles DELETE /v1/sessions/{sessionID}.
func (s *apiServer) deleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.service.Delete(ctx, r.PathValue("sessionID")); err != nil {
		writeError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) getFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	g, err := s.flows.GetFlow(ctx, r.PathValue("botID"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	doc, err := toFlowDocument(g)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, doc)
}

// putFlow handles PUT /v1/bots/{botID}/flow. The body replaces the stored
// graph of the bot after it passed validation.
func (s *apiServer) putFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	botID := r.PathValue("botID")

	var body flowDocument
	if !decodeBody(w, r, &body) {
		return
	}
	if body.BotID != "" && body.BotID != botID {
		writeError(ctx, w, fmt.Errorf("%w: body is for bot %q, path for bot %q", serviceerr.ErrInvalidRequest, body.BotID, botID))
		return
	}
	if len(body.Nodes) == 0 {
		writeError(ctx, w, fmt.Errorf("%w: flow has no nodes", serviceerr.ErrInvalidRequest))
		return
	}

	g, err := flow.DecodeGraph(botID, body.Nodes, body.Edges)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := s.flows.SaveFlow(ctx, g); err != nil {
		writeError(ctx, w, err)
		return
	}
	slogctx.Info(ctx, "Saved flow", "bot_id", botID, "nodes", len(g.Nodes), "edges", len(g.Edges))

	doc, err := toFlowDocument(g)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, doc)
}

func (s *apiServer) deleteFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.flows.DeleteFlow(ctx, r.PathValue("botID")); err != nil {
		writeError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toFlowDocument(g flow.Graph) (flowDocument, error) {
	doc := flowDocument{
		BotID: g.BotID,
		Nodes: make([]flow.RawNode, 0, len(g.Nodes)),
		Edges: g.Edges,
	}
	if doc.Edges == nil {
		doc.Edges = []flow.Edge{}
	}

	for _, n := range g.Nodes {
		rn, err := flow.EncodeNode(n)
		if err != nil {
			return flowDocument{}, err
		}
		doc.Nodes = append(doc.Nodes, rn)
	}

	return doc, nil
}

func toRunResponse(res interpreter.RunResult) runResponse {
	vars := res.Variables
	if vars == nil {
		vars = map[string]any{}
	}

	return runResponse{
		ExecutedSteps: res.ExecutedSteps,
		Status:        res.Status,
		CurrentNodeID: res.CurrentNodeID,
		StopReason:    res.StopReason,
		Variables:     vars,
	}
}

// decodeBody reads an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}

	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return true
	}
	if err != nil {
		writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{Error: "malformed request body: " + err.Error()})
		return false
	}

	return true
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, interpreter.ErrFlowNotFound):
		return http.StatusNotFound
	case errors.Is(err, interpreter.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, interpreter.ErrInvalidFlow), errors.Is(err, flow.ErrInvalidGraph):
		return http.StatusUnprocessableEntity
	case errors.Is(err, interpreter.ErrHandlerFailure):
		return http.StatusBadGateway
	case errors.Is(err, interpreter.ErrPersistenceFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, serviceerr.ErrLocked), errors.Is(err, serviceerr.ErrConflict), errors.Is(err, flow.ErrReadOnly):
		return http.StatusConflict
	case errors.Is(err, serviceerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, serviceerr.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slogctx.Error(ctx, "Request failed", "status", status, "error", err)
	} else {
		slogctx.Info(ctx, "Request rejected", "status", status, "error", err)
	}

	writeJSON(ctx, w, status, errorResponse{
		Error:         err.Error(),
		ExecutedSteps: interpreter.ExecutedStepsOf(err),
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slogctx.Warn(ctx, "Could not write response body", "error", err)
	}
}
