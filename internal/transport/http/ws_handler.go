package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"

	"github.com/gorilla/websocket"
)

// Options carries the presentation timing knobs.
type Options struct {
	PollInterval    time.Duration
	LeaderBannerTTL time.Duration
	ScorePulseTTL   time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = app.DefaultPollInterval
	}
	if o.LeaderBannerTTL <= 0 {
		o.LeaderBannerTTL = app.DefaultLeaderBannerTTL
	}
	if o.ScorePulseTTL <= 0 {
		o.ScorePulseTTL = app.DefaultScorePulseTTL
	}
	return o
}

type WSHandler struct {
	service  *app.QuizService
	opts     Options
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, opts Options) *WSHandler {
	return &WSHandler{
		service: service,
		opts:    opts.withDefaults(),
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

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Selected      string `json:"selected"`
}

type resultsPayload struct {
	PlayerID string `json:"playerId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// questionView is the player-facing question: the correct key never leaves
// the server before scoring.
type questionView struct {
	Index   int               `json:"index"`
	Text    string            `json:"text"`
	Options map[string]string `json:"options"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz
// use cases. Hosts drive lifecycle transitions; players join and answer.
// Both receive session pushes and locally derived timer ticks.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	role := r.URL.Query().Get("role")
	name := r.URL.Query().Get("name")
	if code == "" || (role != "host" && role != "player") {
		http.Error(w, "missing code or invalid role", http.StatusBadRequest)
		return
	}
	if role == "player" && name == "" {
		http.Error(w, "missing player name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	var player domain.Player
	if role == "player" {
		player, err = h.service.Join(ctx, code, name)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
	}

	sessions, cancelSessions, err := h.service.WatchSession(ctx, code)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancelSessions()

	players, cancelPlayers, err := h.service.WatchPlayers(ctx, code)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancelPlayers()

	// Hosts additionally watch the answer stream for the live per-option
	// distribution; players never see it.
	var answerBatches <-chan []domain.Answer
	if role == "host" {
		var cancelAnswers func()
		answerBatches, cancelAnswers, err = h.service.WatchAnswers(ctx, code)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		defer cancelAnswers()
	}

	aggregator := app.NewLeaderboardAggregator(code,
		app.WithDisplayWindows(h.opts.LeaderBannerTTL, h.opts.ScorePulseTTL))
	defer aggregator.Close()

	pumpCount := 4
	if role == "host" {
		pumpCount = 5
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpsDone := make(chan struct{}, pumpCount)

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// emit never wedges a producer: it gives up once teardown begins or the
	// writer has already exited on a write error.
	emit := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-closeSignals:
			return false
		case <-writerDone:
			return false
		}
	}

	// Session pump: forward session pushes, feed the countdown, and push the
	// active question to players whenever the index moves.
	var currentIndex atomic.Int64
	countdownIn := make(chan domain.Session, 8)
	go func() {
		defer func() { pumpsDone <- struct{}{} }()
		defer close(countdownIn)
		lastIndex := -1
		for {
			select {
			case session, ok := <-sessions:
				if !ok {
					return
				}
				currentIndex.Store(int64(session.CurrentQuestionIndex))
				if !emit(outboundMessage[any]{Type: "session", Payload: session}) {
					return
				}
				select {
				case countdownIn <- session:
				default:
					select {
					case <-countdownIn:
					default:
					}
					countdownIn <- session
				}
				if role == "player" && session.CurrentQuestionIndex != lastIndex {
					lastIndex = session.CurrentQuestionIndex
					question, err := h.service.Question(ctx, code, lastIndex)
					if err != nil {
						continue
					}
					if !emit(outboundMessage[any]{Type: "question", Payload: questionView{
						Index:   question.Index,
						Text:    question.Text,
						Options: question.Options,
					}}) {
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Countdown pump: every client derives its own timer from the shared
	// questionStartAt; ticks are local, never written back.
	ticks := make(chan app.Tick, 8)
	go app.NewCountdown(h.opts.PollInterval).Run(ctx, countdownIn, ticks)
	go func() {
		defer func() { pumpsDone <- struct{}{} }()
		for {
			select {
			case tick, ok := <-ticks:
				if !ok {
					return
				}
				if !emit(outboundMessage[any]{Type: "tick", Payload: tick}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Leaderboard pump: full recompute on every players push.
	go func() {
		defer func() { pumpsDone <- struct{}{} }()
		for {
			select {
			case batch, ok := <-players:
				if !ok {
					return
				}
				ranking := aggregator.Apply(batch)
				if !emit(outboundMessage[any]{Type: "leaderboard", Payload: ranking}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Answer pump (host only): tally the distribution for the question the
	// session currently points at.
	if role == "host" {
		go func() {
			defer func() { pumpsDone <- struct{}{} }()
			for {
				select {
				case batch, ok := <-answerBatches:
					if !ok {
						return
					}
					tally := app.TallyAnswers(batch, int(currentIndex.Load()))
					if !emit(outboundMessage[any]{Type: "answerStats", Payload: tally}) {
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
	}

	// Event pump: transient leader/pulse signals.
	go func() {
		defer func() { pumpsDone <- struct{}{} }()
		for {
			select {
			case ev, ok := <-aggregator.Events():
				if !ok {
					return
				}
				if !emit(outboundMessage[any]{Type: "leaderboardEvent", Payload: ev}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if role == "player" {
		emit(outboundMessage[any]{Type: "joined", Payload: player})
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handleInbound(ctx, code, role, player.ID, inbound, emit)
	}

	close(closeSignals)
	cancelCtx()
	for i := 0; i < pumpCount; i++ {
		<-pumpsDone
	}
	close(send)
	<-writerDone
}

func (h *WSHandler) handleInbound(ctx context.Context, code, role, playerID string, inbound inboundMessage, emit func(outboundMessage[any]) bool) {
	fail := func(message string) {
		emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}})
	}

	switch inbound.Type {
	case "answer":
		if role != "player" {
			fail("only players submit answers")
			return
		}
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail("invalid answer payload")
			return
		}
		result, err := h.service.Submit(ctx, code, playerID, payload.QuestionIndex, payload.Selected)
		if err != nil {
			fail(err.Error())
			return
		}
		emit(outboundMessage[any]{Type: "answerResult", Payload: result})
	case "results":
		// Players get their own answers; the host names any player.
		target := playerID
		if role == "host" {
			var payload resultsPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.PlayerID == "" {
				fail("results requires a player id")
				return
			}
			target = payload.PlayerID
		}
		answers, err := h.service.Answers(ctx, code, target)
		if err != nil {
			fail(err.Error())
			return
		}
		emit(outboundMessage[any]{Type: "results", Payload: answers})
	case "start", "next", "end", "reset":
		if role != "host" {
			fail("host commands require the host role")
			return
		}
		var err error
		switch inbound.Type {
		case "start":
			err = h.service.Start(ctx, code)
		case "next":
			err = h.service.Advance(ctx, code)
		case "end":
			err = h.service.End(ctx, code)
		case "reset":
			err = h.service.Reset(ctx, code)
		}
		if err != nil {
			fail(err.Error())
			return
		}
		emit(outboundMessage[any]{Type: "ack", Payload: map[string]string{"command": inbound.Type}})
	default:
		fail("unsupported message type")
	}
}
