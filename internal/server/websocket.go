package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/jonathan/ckd-assistant/internal/interview"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// Message types exchanged over the interview websocket.
const (
	wsQuestion = "question"
	wsAnswer   = "answer"
	wsComplete = "complete"
	wsError    = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsMessage is a single frame of the interview protocol
type wsMessage struct {
	Type     string          `json:"type"`
	Index    int             `json:"index,omitempty"`
	Total    int             `json:"total,omitempty"`
	Question *types.Question `json:"question,omitempty"`
	Prompt   string          `json:"prompt,omitempty"`
	Answer   string          `json:"answer,omitempty"`
	Answers  []types.Answer  `json:"answers,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// handleWebSocket runs the interview over a websocket: the server sends each
// question, the client answers, and the collected answers close the exchange.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Get(r.Context(), id); err != nil {
		s.errorFromErr(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxMessageBytes)

	ctx := r.Context()
	snap, err := s.sessions.Prompt(ctx, id)
	for {
		if err != nil {
			_ = conn.WriteJSON(wsMessage{Type: wsError, Error: err.Error()})
			return
		}
		if snap.Status == interview.StatusComplete {
			_ = conn.WriteJSON(wsMessage{Type: wsComplete, Total: snap.Total, Answers: snap.Answers})
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "interview complete"))
			return
		}

		if err := conn.WriteJSON(questionMessage(snap)); err != nil {
			return
		}

		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.DebugContext(ctx, "websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		if msg.Type != wsAnswer {
			_ = conn.WriteJSON(wsMessage{Type: wsError, Error: "expected an answer message"})
			continue
		}

		snap, err = s.sessions.Submit(ctx, id, msg.Answer)
		var empty *interview.EmptyAnswerError
		if errors.As(err, &empty) {
			if werr := conn.WriteJSON(wsMessage{Type: wsError, Error: err.Error()}); werr != nil {
				return
			}
			snap, err = s.sessions.Prompt(ctx, id)
		}
	}
}

func questionMessage(snap interview.Snapshot) wsMessage {
	msg := wsMessage{Type: wsQuestion, Index: snap.Index, Total: snap.Total, Question: snap.Question}
	if snap.Question != nil {
		msg.Prompt = snap.Question.Prompt()
	}
	return msg
}
