package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apptrail-sh/revisions/internal/model"
)

func TestPublisher_PublishBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("User-Agent") != "revisions/test" {
			t.Errorf("Unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}

		var payload Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		if len(payload.Events) != 2 || payload.Events[1].RevisionID != "rev-2" {
			t.Errorf("Unexpected payload: %+v", payload)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p := NewPublisher(server.URL+"/hooks/revisions", "revisions/test")
	defer p.Close()

	events := []model.RevisionEvent{{RevisionID: "rev-1"}, {RevisionID: "rev-2"}}
	if err := p.PublishBatch(context.Background(), events); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestPublisher_PublishBatch_ClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "bad payload"}`))
	}))
	defer server.Close()

	p := NewPublisher(server.URL, "revisions/test")
	defer p.Close()

	if err := p.PublishBatch(context.Background(), []model.RevisionEvent{{RevisionID: "rev-1"}}); err == nil {
		t.Error("Expected error for 400 response")
	}
}
