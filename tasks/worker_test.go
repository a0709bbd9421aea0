package tasks

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarkWieczorek/bridgy-fed/db"
	"github.com/MarkWieczorek/bridgy-fed/domain"
	"github.com/MarkWieczorek/bridgy-fed/util"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

func setupWorker(t *testing.T) (*db.DB, *util.AppConfig) {
	database, err := db.Connect(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	conf := &util.AppConfig{}
	conf.Conf.Domain = "fed.example.org"
	return database, conf
}

func enqueue(t *testing.T, database *db.DB, source string) *domain.WebmentionTask {
	now := time.Now()
	task := &domain.WebmentionTask{Id: uuid.New(), Source: source, NextRetryAt: now, CreatedAt: now}
	if err := database.EnqueueWebmentionTask(task); err != nil {
		t.Fatalf("EnqueueWebmentionTask failed: %v", err)
	}
	return task
}

func TestProcessWebmentionQueueDelivers(t *testing.T) {
	database, conf := setupWorker(t)

	var srv *httptest.Server
	delivered := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body>fed.example.org<article class="h-entry"><div class="e-content">hi all</div></article></body></html>`)
	})
	mux.HandleFunc("/inbox", func(w http.ResponseWriter, r *http.Request) {
		delivered++
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	sourceDomain := strings.Split(strings.TrimPrefix(srv.URL, "http://"), ":")[0]
	follow := fmt.Sprintf(`{"type": "Follow", "actor": {"id": "https://m.example/users/x", "inbox": "%s/inbox"}}`, srv.URL)
	if err, _ := database.GetOrCreateFollower(sourceDomain, "https://m.example/users/x", follow); err != nil {
		t.Fatalf("Seeding follower failed: %v", err)
	}

	enqueue(t, database, srv.URL+"/post")
	ProcessWebmentionQueue(database, conf)

	if delivered != 1 {
		t.Errorf("Expected 1 delivery, got %d", delivered)
	}
	err, tasks := database.ReadPendingWebmentionTasks(10)
	if err != nil {
		t.Fatalf("ReadPendingWebmentionTasks failed: %v", err)
	}
	if len(*tasks) != 0 {
		t.Errorf("Finished task should be deleted, %d left", len(*tasks))
	}
}

func TestProcessWebmentionQueueRetriesFetchFailure(t *testing.T) {
	database, conf := setupWorker(t)

	// Nothing listens here, so the fetch fails and the task backs off.
	task := enqueue(t, database, "http://127.0.0.1:1/post")
	ProcessWebmentionQueue(database, conf)

	err, tasks := database.ReadPendingWebmentionTasks(10)
	if err != nil {
		t.Fatalf("ReadPendingWebmentionTasks failed: %v", err)
	}
	if len(*tasks) != 0 {
		t.Errorf("Backed-off task should not be pending yet, got %d", len(*tasks))
	}

	// The row survives with a bumped attempt count and a future retry time.
	err, kept := database.ReadWebmentionTask(task.Id)
	if err != nil || kept == nil {
		t.Fatalf("Backed-off task should still exist: %v", err)
	}
	if kept.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", kept.Attempts)
	}
	if !kept.NextRetryAt.After(time.Now()) {
		t.Errorf("Retry time should be in the future, got %v", kept.NextRetryAt)
	}
}

func TestProcessWebmentionQueueDropsPermanentFailure(t *testing.T) {
	database, conf := setupWorker(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body>no backlink here<article class="h-entry"><div class="e-content">hi</div></article></body></html>`)
	}))
	defer srv.Close()

	enqueue(t, database, srv.URL+"/post")
	ProcessWebmentionQueue(database, conf)

	err, tasks := database.ReadPendingWebmentionTasks(10)
	if err != nil {
		t.Fatalf("ReadPendingWebmentionTasks failed: %v", err)
	}
	if len(*tasks) != 0 {
		t.Errorf("Permanently failed task should be dropped, %d left", len(*tasks))
	}
}
