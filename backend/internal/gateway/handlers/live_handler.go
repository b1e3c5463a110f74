package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"classroom/backend/internal/gateway/util"
	"classroom/backend/internal/metrics"
	"classroom/backend/internal/rpc"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// LiveHandler pushes class statistics over a websocket as grades change
type LiveHandler struct {
	Client         *rpc.Client
	AllowedOrigins []string
}

func (h *LiveHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// Statistics handles GET /classes/{id}/live
func (h *LiveHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	caller, _ := util.CallerFrom(r.Context())
	classID := chi.URLParam(r, "id")

	ctx, cancel := context.WithCancel(rpc.WithToken(r.Context(), caller.Token))
	defer cancel()

	stream, err := h.Client.WatchStatistics(ctx, classID)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	// The first message carries any authorization failure, so read it while
	// a plain HTTP error can still be written
	first, err := stream.Recv()
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WARN: websocket upgrade failed for %s: %v", classID, err)
		return
	}
	defer conn.Close()

	metrics.LiveConnections.Inc()
	defer metrics.LiveConnections.Dec()
	log.Printf("INFO: %s opened live statistics for %s", caller.ID, classID)

	// Reader: handle pongs and notice when the client goes away
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	updates := make(chan *rpc.StatisticsResponse)
	go func() {
		defer close(updates)
		for {
			stats, err := stream.Recv()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("WARN: statistics stream for %s ended: %v", classID, err)
				}
				return
			}
			select {
			case updates <- stats:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := writeJSON(conn, first); err != nil {
		return
	}
	for {
		select {
		case stats, ok := <-updates:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return
			}
			if err := writeJSON(conn, stats); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
