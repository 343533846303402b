// Command watch tails the event stream of a stored solution.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	addr := flag.String("addr", "localhost:8080", "API host:port")
	solution := flag.String("solution", "", "solution id to watch")
	types := flag.String("types", "", "comma-separated event types to keep (default all)")
	timeout := flag.Duration("timeout", 0, "stop after this long (0 = until interrupted)")
	flag.Parse()
	if *solution == "" {
		log.Fatal("-solution is required")
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/v1/solutions/" + *solution + "/events"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// gorilla connections allow one concurrent writer
	var wmu sync.Mutex
	write := func(m wsMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		return c.WriteJSON(m)
	}

	if err := write(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	sub := map[string]any{}
	if *types != "" {
		sub["types"] = strings.Split(*types, ",")
	}
	pl, _ := json.Marshal(sub)
	if err := write(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			switch m.Type {
			case "ping":
				_ = write(wsMessage{Type: "pong"})
			case "next":
				log.Printf("event %s", string(m.Payload))
			default:
				log.Printf("WS <- %s %s", m.Type, string(m.Payload))
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	var deadline <-chan time.Time
	if *timeout > 0 {
		deadline = time.After(*timeout)
	}
	select {
	case <-done:
	case <-stop:
	case <-deadline:
	}
	_ = write(wsMessage{Type: "complete", ID: "1"})
	wmu.Lock()
	defer wmu.Unlock()
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
