package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jaredpereira/mud/muderrors"
	"github.com/jaredpereira/mud/protocol"
	"github.com/jaredpereira/mud/utils"
)

var upgrader = websocket.Upgrader{
	// pokes carry no data worth buffering for
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// API is the HTTP surface over a space registry.
type API struct {
	registry *Registry
	log      utils.Logger
}

func NewAPI(registry *Registry, log utils.Logger) *API {
	return &API{registry: registry, log: log}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /space/{space}/push", a.handlePush)
	mux.HandleFunc("POST /space/{space}/pull", a.handlePull)
	mux.HandleFunc("GET /space/{space}/socket", a.handleSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (a *API) space(w http.ResponseWriter, r *http.Request) *Space {
	sp, err := a.registry.Space(r.Context(), r.PathValue("space"))
	if err != nil {
		a.log.ErrorCtx(r.Context(), "opening space", "space", r.PathValue("space"), "err", err)
		http.Error(w, "space unavailable", http.StatusInternalServerError)
		return nil
	}
	return sp
}

func (a *API) handlePush(w http.ResponseWriter, r *http.Request) {
	sp := a.space(w, r)
	if sp == nil {
		return
	}
	var req protocol.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	session, err := a.registry.identity.VerifyIdentity(req.Token)
	if err != nil {
		if errors.Is(err, muderrors.ErrBadToken) {
			writeJSON(w, protocol.PushResponse{Errors: []string{"invalid session token"}})
			return
		}
		http.Error(w, "identity provider unavailable", http.StatusBadGateway)
		return
	}
	resp, err := sp.Push(r.Context(), session, req)
	if err != nil {
		a.log.ErrorCtx(r.Context(), "push failed", "space", sp.ID, "err", err)
		http.Error(w, "push failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func (a *API) handlePull(w http.ResponseWriter, r *http.Request) {
	sp := a.space(w, r)
	if sp == nil {
		return
	}
	var req protocol.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	resp, err := sp.Pull(r.Context(), req)
	if err != nil {
		a.log.ErrorCtx(r.Context(), "pull failed", "space", sp.ID, "err", err)
		http.Error(w, "pull failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func (a *API) handleSocket(w http.ResponseWriter, r *http.Request) {
	sp := a.space(w, r)
	if sp == nil {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sp.Hub().Add(conn)
	// the read loop exists only to notice the peer going away
	go func() {
		defer sp.Hub().Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
