package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/internal/services/pubsub"
)

const (
	wsWriteWait    = 5 * time.Second
	wsPingInterval = 10 * time.Second
	wsPongWait     = 2 * wsPingInterval
	wsBufferSize   = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for WebSocket
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Event is one message on the stats stream.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Stream event types.
const (
	EventStats  = "stats"
	EventIdle   = "idle"
	EventEngine = "engine"
)

// streamStats upgrades to a websocket and forwards stats, idle and engine
// state events until the client goes away.
func (s *Server) streamStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, errNoBus)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	bus := s.deps.Bus
	stats := bus.Subscribe(pubsub.TopicStats, "", wsBufferSize)
	idle := bus.Subscribe(pubsub.TopicIdleState, "", wsBufferSize)
	engine := bus.Subscribe(pubsub.TopicEngineState, "", wsBufferSize)
	defer bus.Unsubscribe(stats)
	defer bus.Unsubscribe(idle)
	defer bus.Unsubscribe(engine)

	log := s.log.WithField("remote", r.RemoteAddr)
	log.Debug("stats stream opened")

	closed := make(chan struct{})
	go s.readPump(conn, closed)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	// Current state first so a client does not wait a stats interval.
	if err := s.send(conn, Event{Type: EventEngine, Data: s.deps.Engine.State()}); err != nil {
		return
	}
	if err := s.send(conn, Event{Type: EventStats, Data: s.deps.Engine.Stats()}); err != nil {
		return
	}

	for {
		var ev Event
		select {
		case <-closed:
			log.Debug("stats stream closed")
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case msg := <-stats.Channel:
			ev = Event{Type: EventStats, Data: msg}
		case msg := <-idle.Channel:
			ev = Event{Type: EventIdle, Data: msg}
		case msg := <-engine.Channel:
			ev = Event{Type: EventEngine, Data: msg}
		}
		if err := s.send(conn, ev); err != nil {
			log.WithError(err).Debug("stats stream write failed")
			return
		}
	}
}

func (s *Server) send(conn *websocket.Conn, ev Event) error {
	if state, ok := ev.Data.(dmx.State); ok {
		ev.Data = state.String()
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ev)
}

// readPump discards client messages and closes closed when the peer leaves.
func (s *Server) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
