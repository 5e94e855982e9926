package statushub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/syncer"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
)

func TestServeStatusSnapshot(t *testing.T) {
	lastSync := time.Now().Unix()
	hub := New(func() models.SyncStatus {
		return models.SyncStatus{LastSyncAt: &lastSync, PendingCount: 2}
	})

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /status = %d", resp.StatusCode)
	}

	var status models.SyncStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.PendingCount != 2 || status.LastSyncAt == nil {
		t.Errorf("status = %+v", status)
	}
}

func TestWebsocketReceivesSyncEvents(t *testing.T) {
	hub := New(func() models.SyncStatus { return models.SyncStatus{} })

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	// Let the register land before broadcasting.
	time.Sleep(50 * time.Millisecond)

	lastSync := time.Now().Unix()
	hub.OnSyncEvent(syncer.Event{
		Type: syncer.EventDrainCompleted,
		Status: models.SyncStatus{
			LastSyncAt:   &lastSync,
			PendingCount: 0,
		},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var envelope Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if envelope.Type != syncer.EventDrainCompleted {
		t.Errorf("envelope type = %s", envelope.Type)
	}
	if envelope.Data["pending_count"].(float64) != 0 {
		t.Errorf("pending_count = %v", envelope.Data["pending_count"])
	}
	if envelope.Data["last_sync_at"] == nil {
		t.Error("last_sync_at missing from envelope")
	}
}
