package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/otrader/engine/internal/dispatcher"
	"github.com/otrader/engine/internal/object"
)

// StreamHandler serves a websocket feed of every dispatcher completion
// event (timer logs, orders, trades), substituting for the grpc
// streaming endpoint the teacher's un-retrieved Twirp service code would
// have backed (see DESIGN.md's dropped-dependency entry). The teacher
// only ever dials a websocket as a client (worker/websockets.go); this
// is this repo's first server-side Upgrader use.
type StreamHandler struct {
	upgrader websocket.Upgrader
}

func NewStreamHandler() *StreamHandler {
	return &StreamHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) SetupHandler(router *mux.Router) {
	router.HandleFunc("/logs", h.streamLogs)
}

type streamEvent struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// streamLogs upgrades to a websocket and forwards every timer-processed
// log batch, order update, and trade fill until the client disconnects.
// Bus.Publish calls happen on the live worker goroutine; outbound is a
// buffered relay so a slow client never stalls the dispatch loop.
func (h *StreamHandler) streamLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("liveserver: websocket upgrade failed")
		return
	}
	defer conn.Close()

	outbound := make(chan streamEvent, 64)
	send := func(kind string) func(payload any) {
		return func(payload any) {
			select {
			case outbound <- streamEvent{Kind: kind, Payload: payload}:
			default:
				log.WithField("kind", kind).Warn("liveserver: stream client too slow, dropping event")
			}
		}
	}

	onLogs := func(logs []object.LogData) { send("logs")(logs) }
	onOrder := func(order object.OrderData) { send("order")(order) }
	onTrade := func(trade object.TradeData) { send("trade")(trade) }

	dispatcher.Bus.Subscribe(dispatcher.TopicTimerProcessed, onLogs)
	dispatcher.Bus.Subscribe(dispatcher.TopicOrderProcessed, onOrder)
	dispatcher.Bus.Subscribe(dispatcher.TopicTradeProcessed, onTrade)
	defer func() {
		dispatcher.Bus.Unsubscribe(dispatcher.TopicTimerProcessed, onLogs)
		dispatcher.Bus.Unsubscribe(dispatcher.TopicOrderProcessed, onOrder)
		dispatcher.Bus.Unsubscribe(dispatcher.TopicTradeProcessed, onTrade)
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-outbound:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
