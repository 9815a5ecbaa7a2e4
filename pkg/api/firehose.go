package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/endomorphosis/websearch/pkg/version"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is already CORS-open; the WS endpoint follows suit.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// firehoseInit is the first frame sent on a new connection.
type firehoseInit struct {
	Type      string `json:"type"`
	Listeners int    `json:"listeners"`
	Version   string `json:"version"`
}

// HandleFirehoseWS upgrades the connection and streams search events until
// the client goes away. Events a slow client cannot keep up with are
// dropped by the hub, not queued.
func (s *Server) HandleFirehoseWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		s.logger.Debugf("websocket upgrade: %v", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debugf("closing websocket: %v", err)
		}
	}()

	id, events := s.hub.Register()
	defer s.hub.Unregister(id)

	init := firehoseInit{
		Type:      "init",
		Listeners: s.hub.Size(),
		Version:   version.APIVersion(),
	}
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return
	}
	if err := conn.WriteJSON(init); err != nil {
		s.logger.Debugf("writing init frame: %v", err)
		return
	}

	// Reader goroutine: we never expect client frames, but reading drains
	// control messages and detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debugf("writing event frame: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
