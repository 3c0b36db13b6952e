package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/deepresearch/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

const (
	watchWriteTimeout = 10 * time.Second
	watchPingInterval = 30 * time.Second
)

// handleWatch streams job snapshots over a websocket until the job reaches a
// terminal state or the client disconnects.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Reject unknown ids before upgrading.
	job, err := s.research.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown job id")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	if s.watched == nil {
		writeError(w, http.StatusNotImplemented, "watch not supported by this store")
		return
	}

	// Subscribe before the initial snapshot so no update can fall between.
	updates := s.watched.Subscribe()
	defer s.watched.Unsubscribe(updates)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("watch upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	// Reader goroutine notices client disconnects.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(snapshot any) error {
		conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
		return conn.WriteJSON(snapshot)
	}

	if err := send(job); err != nil {
		return
	}
	if job.Status.Terminal() {
		return
	}

	ping := time.NewTicker(watchPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-disconnected:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case snapshot := <-updates:
			if snapshot.ID != id {
				continue
			}
			if err := send(snapshot); err != nil {
				return
			}
			if snapshot.Status.Terminal() {
				return
			}
		}
	}
}
