package activitypub

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInboxFromObjectDirect(t *testing.T) {
	obj := map[string]any{"inbox": "https://m.example/inbox"}
	inbox, err := InboxFromObject(obj, "https://m.example/note")
	if err != nil {
		t.Fatalf("InboxFromObject failed: %v", err)
	}
	if inbox != "https://m.example/inbox" {
		t.Errorf("Unexpected inbox: %s", inbox)
	}
}

func TestInboxFromObjectRelative(t *testing.T) {
	obj := map[string]any{"inbox": "/inbox"}
	inbox, err := InboxFromObject(obj, "https://m.example/users/bob")
	if err != nil {
		t.Fatalf("InboxFromObject failed: %v", err)
	}
	if inbox != "https://m.example/inbox" {
		t.Errorf("Relative inbox should resolve against the object URL, got %s", inbox)
	}
}

func TestInboxFromObjectEmbeddedActor(t *testing.T) {
	obj := map[string]any{
		"attributedTo": []any{map[string]any{
			"id":    "https://m.example/users/bob",
			"inbox": "https://m.example/users/bob/inbox",
		}},
	}
	inbox, err := InboxFromObject(obj, "https://m.example/note")
	if err != nil {
		t.Fatalf("InboxFromObject failed: %v", err)
	}
	if inbox != "https://m.example/users/bob/inbox" {
		t.Errorf("Unexpected inbox: %s", inbox)
	}
}

func TestInboxFromObjectActorFetch(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/bob" {
			w.WriteHeader(404)
			return
		}
		w.Header().Set("Content-Type", ContentType)
		fmt.Fprintf(w, `{"id": "%s/users/bob", "inbox": "%s/users/bob/inbox"}`, srv.URL, srv.URL)
	}))
	defer srv.Close()

	obj := map[string]any{"actor": srv.URL + "/users/bob"}
	inbox, err := InboxFromObject(obj, srv.URL+"/note")
	if err != nil {
		t.Fatalf("InboxFromObject failed: %v", err)
	}
	if inbox != srv.URL+"/users/bob/inbox" {
		t.Errorf("Unexpected inbox: %s", inbox)
	}
}

func TestInboxFromObjectNoActor(t *testing.T) {
	_, err := InboxFromObject(map[string]any{"id": "https://m.example/note"}, "https://m.example/note")
	var noActor *NoActorError
	if !errors.As(err, &noActor) {
		t.Fatalf("Expected NoActorError, got %v", err)
	}
}

func TestInboxFromObjectAmbiguousActor(t *testing.T) {
	_, err := InboxFromObject(map[string]any{"actor": map[string]any{"name": "bob"}}, "https://m.example/note")
	var ambiguous *AmbiguousActorError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("Expected AmbiguousActorError, got %v", err)
	}
}

func TestInboxFromObjectNoInbox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		fmt.Fprint(w, `{"id": "https://m.example/users/bob"}`)
	}))
	defer srv.Close()

	obj := map[string]any{"actor": srv.URL + "/users/bob"}
	_, err := InboxFromObject(obj, srv.URL+"/note")
	var noInbox *NoInboxError
	if !errors.As(err, &noInbox) {
		t.Fatalf("Expected NoInboxError, got %v", err)
	}
}

func TestGetAS2RejectsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	_, _, err := GetAS2(srv.URL + "/page")
	var notAS2 *NotAS2Error
	if !errors.As(err, &notAS2) {
		t.Fatalf("Expected NotAS2Error, got %v", err)
	}
}

func TestGetAS2ConnectionError(t *testing.T) {
	_, _, err := GetAS2("http://127.0.0.1:1/nope")
	var gw *GatewayError
	if !errors.As(err, &gw) {
		t.Fatalf("Expected GatewayError, got %v", err)
	}
}
