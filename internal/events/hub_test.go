package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fitstudio/internal/domain"
)

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Register(conn)
	}))
}

func TestHubBroadcastsTerminalUpdate(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Start()
	defer hub.Stop()

	server := newHubServer(t, hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("clients = %d, want 1", hub.ClientCount())
	}

	hub.Publish(&domain.CompositionJob{
		ID:         "job-1",
		Request:    domain.CompositionRequest{StoreID: "store-1"},
		State:      domain.JobStateCompleted,
		ResultURLs: []string{"https://cdn.example.com/out.png"},
		TotalCost:  domain.USD(70_000),
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var update JobUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if update.JobID != "job-1" || update.State != domain.JobStateCompleted {
		t.Fatalf("update = %+v", update)
	}
	if len(update.ResultURLs) != 1 {
		t.Fatalf("result urls = %v", update.ResultURLs)
	}
	if update.TotalCost != 0.07 {
		t.Fatalf("total cost = %v, want 0.07", update.TotalCost)
	}
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Start()
	defer hub.Stop()

	server := newHubServer(t, hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	conn.Close()

	// Two publishes: the first write surfaces the closed socket, which drops
	// the client from the set.
	job := &domain.CompositionJob{ID: "job-2", State: domain.JobStatePending}
	hub.Publish(job)
	hub.Publish(job)

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("clients = %d, want 0 after disconnect", got)
	}
}
