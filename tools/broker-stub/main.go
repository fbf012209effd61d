// broker-stub is a local stand-in for the broker sidecar's publish API.
// It accepts POST /v1.0/publish/{pubsub}/{topic}, records every event, and
// exposes /stats for inspecting what the service published during manual
// testing. It does not deliver events anywhere.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type publishedEvent struct {
	Timestamp   string `json:"timestamp"`
	PubSub      string `json:"pubsub"`
	Topic       string `json:"topic"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

type stats struct {
	Count      int64            `json:"count"`
	ByTopic    map[string]int64 `json:"by_topic"`
	LastEvents []publishedEvent `json:"last_events"`
	Since      string           `json:"since"`
}

var (
	mu         sync.Mutex
	count      int64
	byTopic    = make(map[string]int64)
	lastEvents []publishedEvent
	since      time.Time
	maxStored  = 50
)

func main() {
	since = time.Now().UTC()

	addr := ":3500"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	http.HandleFunc("/v1.0/publish/", publishHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count = 0
		byTopic = make(map[string]int64)
		lastEvents = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("broker-stub listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func publishHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Path shape: /v1.0/publish/{pubsub}/{topic}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1.0/publish/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "expected /v1.0/publish/{pubsub}/{topic}")
		return
	}
	pubsub, topic := parts[0], parts[1]

	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	event := publishedEvent{
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		PubSub:      pubsub,
		Topic:       topic,
		ContentType: r.Header.Get("Content-Type"),
		Body:        string(body),
	}

	mu.Lock()
	count++
	byTopic[topic]++
	lastEvents = append(lastEvents, event)
	if len(lastEvents) > maxStored {
		lastEvents = lastEvents[len(lastEvents)-maxStored:]
	}
	current := count
	mu.Unlock()

	log.Printf("published #%d topic=%s: %s", current, topic, string(body))
	w.WriteHeader(http.StatusNoContent)
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	topics := make(map[string]int64, len(byTopic))
	for k, v := range byTopic {
		topics[k] = v
	}
	s := stats{
		Count:      count,
		ByTopic:    topics,
		LastEvents: lastEvents,
		Since:      since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
