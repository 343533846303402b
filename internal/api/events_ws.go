package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"techroute/internal/model"
	"techroute/internal/store"
)

// Solution events over WebSocket, framed like graphql-transport-ws:
// connection_init / connection_ack, ping / pong, subscribe / next / complete.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribePayload optionally narrows the stream to some event types.
type subscribePayload struct {
	Types []string `json:"types"`
}

const wsReadTimeout = 60 * time.Second

// EventsWSHandler streams the events of one solution.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request, solutionID string) {
	if _, err := s.Store.GetSolution(r.Context(), solutionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Solution not found", solutionID, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get solution failed", err.Error(), r.URL.Path)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	subs := map[string]chan model.Event{}
	done := make(chan struct{})
	defer func() {
		close(done)
		for id, ch := range subs {
			s.Broker.Unsubscribe(solutionID, ch)
			delete(subs, id)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	acked := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "connection_init":
			if acked {
				continue
			}
			acked = true
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "pong":
		case "subscribe":
			if !acked {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"connection_init required"}`)})
				continue
			}
			if _, dup := subs[msg.ID]; dup || msg.ID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"subscription id missing or in use"}`)})
				continue
			}
			var pl subscribePayload
			if len(msg.Payload) > 0 {
				_ = json.Unmarshal(msg.Payload, &pl)
			}
			ch := s.Broker.Subscribe(solutionID)
			subs[msg.ID] = ch
			go func(id string, c chan model.Event, types []string) {
				for evt := range c {
					if len(types) > 0 && !lo.Contains(types, evt.Type) {
						continue
					}
					payload, _ := json.Marshal(evt)
					if err := write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
						return
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch, pl.Types)
		case "complete":
			if ch, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(solutionID, ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
}
