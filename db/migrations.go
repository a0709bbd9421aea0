package db

import (
	"database/sql"
	"log"
)

const (
	// Local users, one per bridged IndieWeb domain
	sqlCreateUsersTable = `CREATE TABLE IF NOT EXISTS users (
		domain TEXT NOT NULL PRIMARY KEY,
		web_public_key TEXT NOT NULL,
		web_private_key TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	// Delivery ledger, one row per (source, target) pair
	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities (
		id TEXT NOT NULL PRIMARY KEY,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		domain TEXT NOT NULL,
		direction TEXT NOT NULL DEFAULT 'out',
		protocol TEXT NOT NULL DEFAULT 'activitypub',
		status TEXT NOT NULL DEFAULT 'new',
		source_mf2 TEXT,
		target_as2 TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source, target)
	)`

	sqlCreateActivitiesIndices = `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_activities_source_target ON activities(source, target);
		CREATE INDEX IF NOT EXISTS idx_activities_domain ON activities(domain);
		CREATE INDEX IF NOT EXISTS idx_activities_updated_at ON activities(updated_at DESC);
	`

	// Remote subscribers per local domain. The composite primary key keeps a
	// domain's followers contiguous for the per-domain scan.
	sqlCreateFollowersTable = `CREATE TABLE IF NOT EXISTS followers (
		domain TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		last_follow TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(domain, actor_uri)
	)`

	sqlCreateFollowersIndices = `
		CREATE INDEX IF NOT EXISTS idx_followers_status ON followers(status);
	`

	// Durable fan-out task queue
	sqlCreateWebmentionTasksTable = `CREATE TABLE IF NOT EXISTS webmention_tasks (
		id TEXT NOT NULL PRIMARY KEY,
		source TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateWebmentionTasksIndices = `
		CREATE INDEX IF NOT EXISTS idx_webmention_tasks_next_retry ON webmention_tasks(next_retry_at);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if err := db.createTableIfNotExists(tx, sqlCreateUsersTable, "users"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateActivitiesTable, "activities"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateFollowersTable, "followers"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateWebmentionTasksTable, "webmention_tasks"); err != nil {
			return err
		}

		if _, err := tx.Exec(sqlCreateActivitiesIndices); err != nil {
			log.Printf("Warning: Failed to create activities indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateFollowersIndices); err != nil {
			log.Printf("Warning: Failed to create followers indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateWebmentionTasksIndices); err != nil {
			log.Printf("Warning: Failed to create webmention_tasks indices: %v", err)
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	return nil
}
