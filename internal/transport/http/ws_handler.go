package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/maluguiro/examen-proctor/internal/app"
	"github.com/maluguiro/examen-proctor/internal/domain"
)

// WSHandler streams live attempt events of one exam to a teacher dashboard.
// Teachers can also intervene on attempts through the same socket.
type WSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(service *app.AttemptService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type interventionPayload struct {
	AttemptID string `json:"attemptId"`
	Seconds   int    `json:"seconds"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type subscribedPayload struct {
	ExamID   string             `json:"examId"`
	Attempts []app.DashboardRow `json:"attempts"`
}

// ServeWS upgrades the request and subscribes the caller to the exam's live feed.
// Browsers cannot set headers on websocket requests, so the actor may come from ?userId=.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	userID := actor(r)
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	if examID == "" || userID == "" {
		http.Error(w, "missing examId or userId", http.StatusBadRequest)
		return
	}

	// Authorize before upgrading so a plain HTTP status can be returned.
	snapshot, err := h.service.ListExamAttempts(r.Context(), userID, examID)
	if err != nil {
		kind := domain.KindOf(err)
		http.Error(w, err.Error(), statusFor(err, kind))
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), userID, examID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err, domain.KindOf(err)))
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer goroutine; gorilla connections do not allow concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				// unblock the read loop below
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: ev}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	alive := deliver(send, writerDone, outboundMessage[any]{Type: "subscribed", Payload: subscribedPayload{ExamID: examID, Attempts: snapshot}})

	for alive {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var payload interventionPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				alive = deliver(send, writerDone, errorMessage("invalid payload", domain.KindValidation))
				continue
			}
		}

		var (
			attempt domain.Attempt
			actErr  error
		)
		switch inbound.Type {
		case "extraTime":
			attempt, actErr = h.service.GrantExtraTime(r.Context(), userID, payload.AttemptID, payload.Seconds)
		case "forgiveLife":
			attempt, actErr = h.service.ForgiveLife(r.Context(), userID, payload.AttemptID)
		default:
			alive = deliver(send, writerDone, errorMessage("unsupported message type", domain.KindValidation))
			continue
		}
		if actErr != nil {
			alive = deliver(send, writerDone, errorMessage(actErr.Error(), domain.KindOf(actErr)))
			continue
		}
		alive = deliver(send, writerDone, outboundMessage[any]{Type: "ack", Payload: attempt})
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// deliver queues msg for the writer. It returns false once the writer has stopped,
// so a full queue can never block the caller.
func deliver(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func errorMessage(msg string, kind domain.Kind) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg, Code: kind.String()}}
}
