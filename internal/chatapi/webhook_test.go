package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	apperr "doradura/internal/errors"
	"doradura/internal/progress"
)

func TestWebhookSink_Deliver_PostsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["ChatID"].(float64) != 42 {
			t.Errorf("ChatID = %v, want 42", body["ChatID"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	err := sink.Deliver(progress.Update{JobID: "job-1", ChatID: 42, Percent: 50})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
}

func TestWebhookSink_Deliver_ServerErrorReturnsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	err := sink.Deliver(progress.Update{ChatID: 1})
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
	if apperr.KindOf(err) != apperr.KindTransport {
		t.Errorf("Kind = %v, want %v", apperr.KindOf(err), apperr.KindTransport)
	}
}

func TestWebhookDelivery_Send_SucceedsAndReturnsRemoteFileID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"remote_file_id":"file-abc"}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	d := NewWebhookDelivery(server.URL, 3)
	ref, err := d.Send(context.Background(), 42, path, Metadata{Title: "Song"}, false)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if ref != "file-abc" {
		t.Errorf("ref = %q, want %q", ref, "file-abc")
	}
}

func TestWebhookDelivery_Send_RetriesOnTransportErrorThenSucceeds(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"remote_file_id":"file-xyz"}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	d := NewWebhookDelivery(server.URL, 5)
	ref, err := d.Send(context.Background(), 1, path, Metadata{}, false)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if ref != "file-xyz" {
		t.Errorf("ref = %q, want %q", ref, "file-xyz")
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWebhookDelivery_Send_PermanentErrorDoesNotRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	d := NewWebhookDelivery(server.URL, 5)
	_, err := d.Send(context.Background(), 1, path, Metadata{}, false)
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on non-transport error)", attempts)
	}
}

func TestWebhookDelivery_SendReference_PostsReferencePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reference" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewWebhookDelivery(server.URL, 3)
	err := d.SendReference(context.Background(), 1, "file-abc", Metadata{Title: "Song"})
	if err != nil {
		t.Fatalf("SendReference() error = %v", err)
	}
}
