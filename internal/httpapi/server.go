package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/autocrm/dealervoice/internal/call"
	"github.com/autocrm/dealervoice/internal/config"
	"github.com/autocrm/dealervoice/internal/crm"
	"github.com/autocrm/dealervoice/internal/observability"
	"github.com/autocrm/dealervoice/internal/protocol"
)

type Coordinator interface {
	StartCall(ctx context.Context, params crm.StartParams) (*call.Session, error)
	RunCall(ctx context.Context, s *call.Session, inbound <-chan any, outbound chan<- any) error
	EndCall(ctx context.Context, s *call.Session, outcome string) call.Snapshot
}

type Server struct {
	cfg         config.Config
	calls       *call.Manager
	coordinator Coordinator
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

func New(cfg config.Config, calls *call.Manager, coordinator Coordinator, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		calls:       calls,
		coordinator: coordinator,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the same
				// origin. The agent console drives live mic sessions over this
				// socket, so cross-origin pages must not be able to attach.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/calls", s.handleStartCall)
	r.Post("/v1/calls/{id}/end", s.handleEndCall)
	r.Get("/v1/calls/active", s.handleActiveCalls)
	r.Get("/v1/calls/ws", s.handleCallWS)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"active_calls": s.calls.ActiveCount(),
	})
}

type startCallRequest struct {
	Phone        string `json:"phone"`
	CustomerName string `json:"customer_name"`
	Direction    string `json:"direction"`
	CallType     string `json:"call_type"`
	Language     string `json:"language"`
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		respondError(w, http.StatusBadRequest, "missing_phone", "phone is required")
		return
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		req.CustomerName = "Customer"
	}
	if strings.TrimSpace(req.Direction) == "" {
		req.Direction = "inbound"
	}
	if strings.TrimSpace(req.CallType) == "" {
		req.CallType = "inquiry"
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = s.cfg.DefaultLanguage
	}

	sess, err := s.coordinator.StartCall(r.Context(), crm.StartParams{
		Phone:        req.Phone,
		CustomerName: req.CustomerName,
		Direction:    req.Direction,
		CallType:     req.CallType,
		Language:     req.Language,
	})
	if err != nil {
		var apiErr *crm.APIError
		if errors.As(err, &apiErr) {
			respondError(w, http.StatusBadGateway, apiErr.Code, apiErr.Message)
			return
		}
		if errors.Is(err, crm.ErrUnreachable) {
			respondError(w, http.StatusServiceUnavailable, "crm_unreachable", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "start_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_call_id", "missing call id")
		return
	}

	sess, err := s.calls.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}

	snap := s.coordinator.EndCall(r.Context(), sess, "ended_by_operator")
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleActiveCalls(w http.ResponseWriter, _ *http.Request) {
	snaps := s.calls.Snapshots()
	respondJSON(w, http.StatusOK, map[string]any{
		"count": len(snaps),
		"calls": snaps,
	})
}

func (s *Server) handleCallWS(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(r.URL.Query().Get("call_id"))
	if callID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_id", "query parameter call_id is required")
		return
	}
	if s.coordinator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "coordinator not configured")
		return
	}

	sess, err := s.calls.Get(callID)
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.CallEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		_ = s.coordinator.RunCall(ctx, sess, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				CallID:    callID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if outbound queue
				// is saturated.
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case <-runDone:
			// The call loop already exited (client_end_call); nothing is
			// draining inbound anymore.
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.CallEvents.WithLabelValues("ws_disconnected").Inc()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientStartListening:
		return m.Type, true
	case protocol.ClientStopListening:
		return m.Type, true
	case protocol.ClientTypedText:
		return m.Type, true
	case protocol.ClientHumanText:
		return m.Type, true
	case protocol.ClientTakeover:
		return m.Type, true
	case protocol.ClientEndCall:
		return m.Type, true
	case protocol.CallState:
		return m.Type, true
	case protocol.ListeningStarted:
		return m.Type, true
	case protocol.ListeningEnded:
		return m.Type, true
	case protocol.PartialSpeech:
		return m.Type, true
	case protocol.TranscriptEntry:
		return m.Type, true
	case protocol.TelemetryUpdate:
		return m.Type, true
	case protocol.SpeakingStarted:
		return m.Type, true
	case protocol.SpeakingAudio:
		return m.Type, true
	case protocol.SpeakingEnded:
		return m.Type, true
	case protocol.TakeoverStarted:
		return m.Type, true
	case protocol.DurationTick:
		return m.Type, true
	case protocol.CallEnded:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
