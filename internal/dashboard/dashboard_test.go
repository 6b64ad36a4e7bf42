package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/tokensmith/toksync/internal/diff"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{
		Port:   0, // Use random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	return server
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{
		Port:   0,
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	// Read welcome message
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeStats {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}
}

func TestBroadcastDivergences(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Skip the welcome message
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}

	server.BroadcastDivergences("proj-1", []diff.Divergence{
		{Key: "added:v1", Kind: diff.Added, Name: "color/primary", RemoteValue: "#ff0000ff"},
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeDivergences {
		t.Fatalf("Expected divergences message, got %s", msg.Type)
	}

	var payload DivergencesData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if payload.ProjectID != "proj-1" || len(payload.Divergences) != 1 {
		t.Errorf("Unexpected payload: %+v", payload)
	}
	if payload.Divergences[0].Key != "added:v1" {
		t.Errorf("Unexpected divergence: %+v", payload.Divergences[0])
	}
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"

	numClients := 3
	for i := 0; i < numClients; i++ {
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			t.Fatalf("Failed to connect client %d: %v", i, err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
	}

	time.Sleep(100 * time.Millisecond)

	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}
}

func TestNewMessageCarriesPayload(t *testing.T) {
	msg := NewMessage(MessageTypeApplyComplete, ApplyCompleteData{ProjectID: "proj-1", Created: 2})

	if msg.Type != MessageTypeApplyComplete || msg.Timestamp.IsZero() {
		t.Errorf("Unexpected message envelope: %+v", msg)
	}

	var payload ApplyCompleteData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if payload.Created != 2 {
		t.Errorf("Unexpected payload: %+v", payload)
	}
}
