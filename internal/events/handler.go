package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/craftbid/backend/internal/models"
)

const maxPageSize = 500

// Feed is the read surface of the change-event log.
type Feed interface {
	ListAfter(ctx context.Context, after int64, limit int) ([]*models.Event, error)
}

// Handler serves the change feed: a cursor-polling JSON endpoint and a
// websocket stream that replays from a cursor and then follows live events.
type Handler struct {
	feed Feed
	hub  *Hub
	log  *slog.Logger
}

func NewHandler(feed Feed, hub *Hub, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{feed: feed, hub: hub, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// List handles GET /events?after=<seq>&limit=<n>.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	after, limit, ok := cursorParams(r)
	if !ok {
		http.Error(w, `{"error":"invalid after or limit"}`, http.StatusBadRequest)
		return
	}
	list, err := h.feed.ListAfter(r.Context(), after, limit)
	if err != nil {
		h.log.Error("list events", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

// Stream handles GET /events/stream. The connection first replays events
// after the given cursor, then follows the live hub. Consumers may see an
// event twice across the replay/live boundary and must dedupe on seq.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	after, _, ok := cursorParams(r)
	if !ok {
		http.Error(w, `{"error":"invalid after"}`, http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	sub, cancel := h.hub.Subscribe()
	defer cancel()

	// Replay the durable feed up to the present.
	cursor := after
	for {
		batch, err := h.feed.ListAfter(r.Context(), cursor, maxPageSize)
		if err != nil {
			h.log.Error("event replay failed", "error", err)
			return
		}
		for _, ev := range batch {
			if err := ws.WriteJSON(ev); err != nil {
				return
			}
			cursor = ev.Seq
		}
		if len(batch) < maxPageSize {
			break
		}
	}

	// Drain client frames so pongs and closes are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, open := <-sub:
			if !open {
				return
			}
			if ev.Seq <= cursor {
				continue
			}
			if err := ws.WriteJSON(ev); err != nil {
				return
			}
			cursor = ev.Seq
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func cursorParams(r *http.Request) (after int64, limit int, ok bool) {
	limit = 100
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		after = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPageSize {
			return 0, 0, false
		}
		limit = n
	}
	return after, limit, true
}
