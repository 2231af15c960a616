package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"gongzi-quiz-service/internal/app"
	"gongzi-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service    *app.PlayService
	identities *IdentityResolver
	upgrader   websocket.Upgrader
}

func NewWSHandler(service *app.PlayService, identities *IdentityResolver) *WSHandler {
	return &WSHandler{
		service:    service,
		identities: identities,
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

type timedAnswerPayload struct {
	Answer string `json:"answer"`
}

type topicPayload struct {
	Topic string `json:"topic"`
}

type themedAnswerPayload struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

type focusResetPayload struct {
	SwitchToFocus *bool `json:"switchToFocus"`
}

type focusDurationsPayload struct {
	FocusMinutes int `json:"focusMinutes"`
	BreakMinutes int `json:"breakMinutes"`
}

type joinedPayload struct {
	DeviceID string                          `json:"deviceId"`
	Identity *domain.Identity                `json:"identity,omitempty"`
	Rules    rulesPayload                    `json:"rules"`
	Timed    app.TimedSnapshot               `json:"timed"`
	Themed   app.ThemedSnapshot              `json:"themed"`
	Focus    app.FocusSnapshot               `json:"focus"`
	Progress map[string]domain.TopicProgress `json:"progress"`
}

// rulesPayload lets clients render question counts and the score bonus.
type rulesPayload struct {
	QuestionSeconds int     `json:"questionSeconds"`
	TotalQuestions  int     `json:"totalQuestions"`
	ThemedQuestions int     `json:"themedQuestions"`
	BaseScore       int     `json:"baseScore"`
	MaxBonusSeconds float64 `json:"maxBonusSeconds"`
	BonusPerSecond  float64 `json:"bonusPerSecond"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the play use cases.
// Every event of the device is forwarded; commands answer with an error message on failure.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	device := deviceID(r)
	if device == "" {
		http.Error(w, "missing deviceId", http.StatusBadRequest)
		return
	}
	ident, err := h.identities.Resolve(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	player, err := h.service.Join(ctx, device, ident)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	events, cancel := player.Subscribe()
	defer h.service.Leave(player)
	defer cancel()

	out := newOutbox(16)
	closeSignals := make(chan struct{})
	eventsDone := make(chan struct{})

	// Single writer: gorilla connections do not allow concurrent writes.
	go func() {
		defer close(out.writerDone)
		for msg := range out.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case out.send <- outboundMessage[any]{Type: ev.Type, Payload: ev.Payload}:
				case <-out.writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	rules := h.service.Rules()
	joined := out.put(outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		DeviceID: device,
		Identity: player.Current(),
		Rules: rulesPayload{
			QuestionSeconds: int(h.service.QuestionTime(ctx, player) / time.Second),
			TotalQuestions:  rules.TotalQuestions,
			ThemedQuestions: rules.ThemedQuestions,
			BaseScore:       rules.BaseScore,
			MaxBonusSeconds: rules.MaxBonusSeconds,
			BonusPerSecond:  rules.BonusPerSecond,
		},
		Timed:    player.Timed.Snapshot(),
		Themed:   player.Themed.Snapshot(),
		Focus:    player.Focus.Snapshot(ctx),
		Progress: player.Themed.Progress(ctx),
	}})

	for joined {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.dispatch(ctx, player, inbound, out); err != nil {
			if !out.put(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}) {
				break
			}
		}
	}

	close(closeSignals)
	<-eventsDone
	close(out.send)
	<-out.writerDone
}

// outbox queues messages for the connection's single writer.
type outbox struct {
	send       chan outboundMessage[any]
	writerDone chan struct{}
}

func newOutbox(size int) outbox {
	return outbox{send: make(chan outboundMessage[any], size), writerDone: make(chan struct{})}
}

// put reports false once the writer has stopped, so a dead connection never blocks reads.
func (o outbox) put(msg outboundMessage[any]) bool {
	select {
	case o.send <- msg:
		return true
	case <-o.writerDone:
		return false
	}
}

var (
	errBadPayload  = errors.New("invalid payload")
	errUnsupported = errors.New("unsupported message type")
)

func (h *WSHandler) dispatch(ctx context.Context, p *app.Player, in inboundMessage, out outbox) error {
	switch in.Type {
	case "timed.start":
		return p.StartTimed(ctx)
	case "timed.answer":
		var payload timedAnswerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return errBadPayload
		}
		_, err := p.Timed.Submit(payload.Answer)
		return err
	case "timed.reset":
		p.Timed.Reset()
		return nil
	case "themed.select":
		var payload topicPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return errBadPayload
		}
		return p.Themed.SelectTopic(payload.Topic)
	case "themed.answer":
		var payload themedAnswerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return errBadPayload
		}
		return p.Themed.Answer(payload.QuestionID, payload.Value)
	case "themed.next":
		_, err := p.Themed.Next(ctx)
		return err
	case "themed.submit":
		_, err := p.Themed.Submit(ctx)
		return err
	case "themed.restart":
		return p.Themed.Restart()
	case "themed.choose":
		p.Themed.ChooseTopic()
		return nil
	case "focus.start":
		p.Focus.Start(ctx)
		return nil
	case "focus.pause":
		p.Focus.Pause(ctx)
		return nil
	case "focus.reset":
		var payload focusResetPayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &payload); err != nil {
				return errBadPayload
			}
		}
		p.Focus.Reset(ctx, payload.SwitchToFocus == nil || *payload.SwitchToFocus)
		return nil
	case "focus.durations":
		var payload focusDurationsPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return errBadPayload
		}
		return p.SetFocusDurations(ctx, time.Duration(payload.FocusMinutes)*time.Minute, time.Duration(payload.BreakMinutes)*time.Minute)
	case "snapshot":
		if out.put(outboundMessage[any]{Type: app.EventTimedState, Payload: p.Timed.Snapshot()}) &&
			out.put(outboundMessage[any]{Type: app.EventThemedState, Payload: p.Themed.Snapshot()}) {
			out.put(outboundMessage[any]{Type: app.EventFocusState, Payload: p.Focus.Snapshot(ctx)})
		}
		return nil
	}
	return errUnsupported
}
