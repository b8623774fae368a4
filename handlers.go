package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kwv/solarbot/telemetry"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from other origins on the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newHTTPServer creates the HTTP handler with all endpoints
func newHTTPServer(store *telemetry.Store) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := store.Read()
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Connected bool      `json:"connected"`
			Seq       uint64    `json:"seq"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Connected: snap.Connected,
			Seq:       snap.Seq,
		}
		writeJSON(w, status)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, store.Read())
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveSnapshots(store, w, r)
	}).Methods(http.MethodGet)

	r.Use(loggingMiddleware)
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] error encoding response: %v", err)
	}
}

// serveSnapshots upgrades to a WebSocket and pushes the current snapshot,
// then every change, until the client goes away.
func serveSnapshots(store *telemetry.Store, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade error: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	updates, cancel := store.Subscribe()
	defer cancel()

	// Clients never send anything meaningful; reading detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[WS] read error: %v", err)
				}
				return
			}
		}
	}()

	log.Printf("[WS] client connected from %s", r.RemoteAddr)
	defer log.Printf("[WS] client %s disconnected", r.RemoteAddr)

	if err := pushSnapshot(conn, store.Read()); err != nil {
		return
	}
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := pushSnapshot(conn, snap); err != nil {
				return
			}
		}
	}
}

func pushSnapshot(conn *websocket.Conn, snap telemetry.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(snap); err != nil {
		log.Printf("[WS] write error: %v", err)
		return err
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[HTTP] %s %s from %s %v", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}
