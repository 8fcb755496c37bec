package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"subledger/internal/api"
	"subledger/internal/events"
	"subledger/pkg/middleware"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	writeWait       = 10 * time.Second
	pingPeriod      = 30 * time.Second
)

type Handler struct {
	Outbox   *events.Outbox
	upgrader websocket.Upgrader
}

// NewEventsHandler serves the outbox. allowedOrigins restricts websocket
// upgrades; empty accepts any origin.
func NewEventsHandler(outbox *events.Outbox, allowedOrigins []string) *Handler {
	h := &Handler{Outbox: outbox}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

type pollResponse struct {
	Events  []events.Event `json:"events"`
	LastSeq uint64         `json:"last_seq"`
}

// Poll returns events after ?after=, oldest first, at most ?limit=.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	after, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	evs := h.Outbox.Since(after, limit)
	api.WriteJSON(w, http.StatusOK, pollResponse{Events: evs, LastSeq: h.Outbox.LastSeq()})
}

// Stream upgrades to a websocket, replays events after ?after= and then
// pushes new ones as they are appended.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	after, _, ok := pageParams(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// subscribe before reading the backlog so nothing falls in between
	live, cancel := h.Outbox.Subscribe(0)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sent := after
	send := func(e events.Event) bool {
		if e.Seq <= sent {
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			log.Debug().Err(err).Msg("event stream write failed")
			return false
		}
		sent = e.Seq
		return true
	}

	for _, e := range h.Outbox.Since(after, 0) {
		if !send(e) {
			return
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case e, ok := <-live:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber fell behind"),
					time.Now().Add(writeWait))
				return
			}
			if !send(e) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func pageParams(w http.ResponseWriter, r *http.Request) (uint64, int, bool) {
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			api.WriteJSON(w, http.StatusBadRequest, middleware.ErrorResponse{Error: "after must be a sequence number", Field: "after", Value: v})
			return 0, 0, false
		}
		after = n
	}

	limit := defaultPageSize
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			api.WriteJSON(w, http.StatusBadRequest, middleware.ErrorResponse{Error: "limit must be a positive integer", Field: "limit", Value: v})
			return 0, 0, false
		}
		limit = n
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return after, limit, true
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
