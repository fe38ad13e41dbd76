package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaredpereira/mud/protocol"
	"github.com/jaredpereira/mud/utils"
)

const pokeInterval = 100 * time.Millisecond

// Hub fans pokes out to a space's connected sockets. Pokes are coalesced:
// while a flush is pending, further pokes fold into it. Delivery is
// best-effort; a dead socket is dropped and its client falls back to plain
// pulling.
type Hub struct {
	log utils.Logger

	lock      sync.Mutex
	conns     map[*websocket.Conn]struct{}
	throttled bool
	closed    bool
}

func newHub(log utils.Logger) *Hub {
	return &Hub{log: log, conns: map[*websocket.Conn]struct{}{}}
}

func (h *Hub) Add(conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		conn.Close()
		return
	}
	h.conns[conn] = struct{}{}
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.conns, conn)
	conn.Close()
}

// Poke schedules a poke to every connected socket, at most one per
// interval.
func (h *Hub) Poke() {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.throttled || h.closed {
		pokesThrottled.Inc()
		return
	}
	h.throttled = true
	time.AfterFunc(pokeInterval, h.flush)
}

func (h *Hub) flush() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.throttled = false
	if h.closed {
		return
	}
	for conn := range h.conns {
		if err := conn.WriteJSON(protocol.Poke{Type: "poke"}); err != nil {
			h.log.Debug("dropping poke socket", "err", err)
			delete(h.conns, conn)
			conn.Close()
			continue
		}
		pokesSent.Inc()
	}
}

func (h *Hub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	for conn := range h.conns {
		conn.Close()
	}
	h.conns = map[*websocket.Conn]struct{}{}
}
