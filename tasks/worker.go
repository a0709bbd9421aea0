package tasks

import (
	"errors"
	"log"
	"time"

	"github.com/MarkWieczorek/bridgy-fed/db"
	"github.com/MarkWieczorek/bridgy-fed/domain"
	"github.com/MarkWieczorek/bridgy-fed/util"
	"github.com/MarkWieczorek/bridgy-fed/webmention"
)

// StartWebmentionWorker starts a background worker that drains the queued
// follower fan-outs.
func StartWebmentionWorker(conf *util.AppConfig) {
	log.Println("Starting webmention task worker...")

	ticker := time.NewTicker(10 * time.Second)
	go func() {
		for range ticker.C {
			ProcessWebmentionQueue(db.GetDB(), conf)
		}
	}()
}

// ProcessWebmentionQueue runs one pass over the pending tasks.
func ProcessWebmentionQueue(database *db.DB, conf *util.AppConfig) {
	// Get pending tasks (max 50 at a time)
	err, items := database.ReadPendingWebmentionTasks(50)
	if err != nil {
		log.Printf("TaskWorker: Failed to read queue: %v", err)
		return
	}

	if items == nil || len(*items) == 0 {
		return
	}

	log.Printf("TaskWorker: Processing %d pending tasks", len(*items))

	in := webmention.NewIngestor(database, conf)
	for _, item := range *items {
		if err := runTask(in, &item); err != nil {
			// Failed fan-out, retry with exponential backoff
			item.Attempts++
			backoffMinutes := []int{1, 5, 15, 60, 240, 1440}[min(item.Attempts-1, 5)]
			item.NextRetryAt = time.Now().Add(time.Duration(backoffMinutes) * time.Minute)

			if item.Attempts >= 10 {
				// Give up after 10 attempts
				log.Printf("TaskWorker: Giving up on %s after %d attempts", item.Source, item.Attempts)
				database.DeleteWebmentionTask(item.Id)
			} else {
				log.Printf("TaskWorker: Fan-out for %s failed (attempt %d), retry in %dm: %v",
					item.Source, item.Attempts, backoffMinutes, err)
				database.UpdateWebmentionTaskAttempt(item.Id, item.Attempts, item.NextRetryAt)
			}
		} else {
			log.Printf("TaskWorker: Finished fan-out for %s", item.Source)
			database.DeleteWebmentionTask(item.Id)
		}
	}
}

// runTask re-ingests the queued source in task mode, which runs the
// follower fan-out inline. Permanent source-side failures don't return an
// error: retrying a page with no backlink or broken markup won't fix it.
func runTask(in *webmention.Ingestor, item *domain.WebmentionTask) error {
	_, err := in.Ingest(item.Source, webmention.ModeTask)
	if err == nil {
		return nil
	}

	var ingErr *webmention.IngestError
	if errors.As(err, &ingErr) {
		switch ingErr.Kind {
		case webmention.KindFetch, webmention.KindGateway, webmention.KindInternal:
			return err
		}
		log.Printf("TaskWorker: Dropping %s: %v", item.Source, ingErr)
		return nil
	}
	return err
}

// min returns the minimum of two integers
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
