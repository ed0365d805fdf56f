package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"

	"dynamic-flea-price/internal/storage"
)

const (
	defaultStreamInterval = 2 * time.Second
	streamWriteTimeout    = 5 * time.Second
)

// streamMessage is pushed to observers whenever the multipliers change.
type streamMessage struct {
	Type     string                  `json:"type"`
	Revision uint64                  `json:"revision"`
	State    storage.MultiplierState `json:"state"`
}

// handleStream upgrades to a websocket and pushes the multiplier state on
// connect and after every change. Client messages are ignored.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	log := hlog.FromRequest(r)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := s.deps.StreamInterval
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent uint64
	first := true
	for {
		if rev := s.deps.Engine.Revision(); first || rev != sent {
			state, ok := s.deps.Engine.Snapshot()
			if ok {
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteJSON(streamMessage{Type: "multipliers", Revision: rev, State: state}); err != nil {
					log.Debug().Err(err).Msg("stream write failed")
					return
				}
				sent = rev
				first = false
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
