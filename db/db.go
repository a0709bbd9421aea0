package db

import (
	"context"
	"database/sql"
	"sync"

	"github.com/MarkWieczorek/bridgy-fed/domain"
	"github.com/MarkWieczorek/bridgy-fed/util"
	"github.com/google/uuid"
	"log"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
	"time"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

// Users queries
const (
	sqlInsertUser         = `INSERT INTO users(domain, web_public_key, web_private_key, created_at) VALUES (?, ?, ?, ?)`
	sqlSelectUserByDomain = `SELECT domain, web_public_key, web_private_key, created_at FROM users WHERE domain = ?`
)

// GetOrCreateUser returns the User for a local domain, creating it with a
// fresh signing keypair on first contact.
func (db *DB) GetOrCreateUser(userDomain string) (error, *domain.User) {
	err, found := db.ReadUserByDomain(userDomain)
	if err == nil && found != nil {
		return nil, found
	}
	if err != sql.ErrNoRows {
		return err, nil
	}

	log.Printf("No user record for %s found, creating..", userDomain)
	keypair := util.GeneratePemKeypair()
	user := &domain.User{
		Domain:        userDomain,
		WebPublicKey:  keypair.Public,
		WebPrivateKey: keypair.Private,
		CreatedAt:     time.Now(),
	}

	err = db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertUser, user.Domain, user.WebPublicKey, user.WebPrivateKey, user.CreatedAt)
		return err
	})
	if err != nil {
		return err, nil
	}
	return nil, user
}

func (db *DB) ReadUserByDomain(userDomain string) (error, *domain.User) {
	row := db.db.QueryRow(sqlSelectUserByDomain, userDomain)
	var user domain.User
	err := row.Scan(&user.Domain, &user.WebPublicKey, &user.WebPrivateKey, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, &user
}

// Activity ledger queries. Activities are unique per (source, target); a
// repeated webmention for the same pair lands on the existing row.
const (
	sqlInsertActivity = `INSERT INTO activities(id, source, target, domain, direction, protocol, status, source_mf2, target_as2, created_at, updated_at)
                        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActivityBySourceTarget = `SELECT id, source, target, domain, direction, protocol, status, source_mf2, target_as2, created_at, updated_at
                        FROM activities WHERE source = ? AND target = ?`
	sqlUpdateActivityDelivery = `UPDATE activities SET status = ?, source_mf2 = ?, target_as2 = ?, updated_at = ? WHERE source = ? AND target = ?`
	sqlSelectRecentActivities = `SELECT id, source, target, domain, direction, protocol, status, source_mf2, target_as2, created_at, updated_at
                        FROM activities WHERE direction = 'out' ORDER BY updated_at DESC LIMIT ?`
)

// GetOrCreateActivity upserts the ledger entry for (source, target). An
// existing row is returned untouched, keeping its previous source snapshot
// for the duplicate-content check.
func (db *DB) GetOrCreateActivity(source, target, sourceDomain, sourceMF2 string) (error, *domain.Activity) {
	err, existing := db.ReadActivityBySourceTarget(source, target)
	if err == nil && existing != nil {
		return nil, existing
	}
	if err != sql.ErrNoRows {
		return err, nil
	}

	now := time.Now()
	activity := &domain.Activity{
		Id:        uuid.New(),
		Source:    source,
		Target:    target,
		Domain:    sourceDomain,
		Direction: domain.DirectionOut,
		Protocol:  domain.ProtocolActivityPub,
		Status:    domain.StatusNew,
		SourceMF2: sourceMF2,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertActivity,
			activity.Id.String(),
			activity.Source,
			activity.Target,
			activity.Domain,
			activity.Direction,
			activity.Protocol,
			activity.Status,
			activity.SourceMF2,
			activity.TargetAS2,
			activity.CreatedAt,
			activity.UpdatedAt,
		)
		return err
	})
	if err != nil {
		// Lost a race with a concurrent insert for the same pair
		err2, existing := db.ReadActivityBySourceTarget(source, target)
		if err2 == nil && existing != nil {
			return nil, existing
		}
		return err, nil
	}
	return nil, activity
}

func (db *DB) ReadActivityBySourceTarget(source, target string) (error, *domain.Activity) {
	row := db.db.QueryRow(sqlSelectActivityBySourceTarget, source, target)
	var activity domain.Activity
	var idStr string
	err := row.Scan(
		&idStr,
		&activity.Source,
		&activity.Target,
		&activity.Domain,
		&activity.Direction,
		&activity.Protocol,
		&activity.Status,
		&activity.SourceMF2,
		&activity.TargetAS2,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	activity.Id, _ = uuid.Parse(idStr)
	return nil, &activity
}

// UpdateActivityDelivery persists the outcome of a delivery attempt: the new
// status plus refreshed source and target snapshots.
func (db *DB) UpdateActivityDelivery(activity *domain.Activity) error {
	activity.UpdatedAt = time.Now()
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateActivityDelivery,
			activity.Status,
			activity.SourceMF2,
			activity.TargetAS2,
			activity.UpdatedAt,
			activity.Source,
			activity.Target,
		)
		return err
	})
}

func (db *DB) ReadRecentActivities(limit int) (error, *[]domain.Activity) {
	rows, err := db.db.Query(sqlSelectRecentActivities, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		var activity domain.Activity
		var idStr string
		if err := rows.Scan(&idStr, &activity.Source, &activity.Target, &activity.Domain,
			&activity.Direction, &activity.Protocol, &activity.Status,
			&activity.SourceMF2, &activity.TargetAS2, &activity.CreatedAt, &activity.UpdatedAt); err != nil {
			return err, &activities
		}
		activity.Id, _ = uuid.Parse(idStr)
		activities = append(activities, activity)
	}
	if err = rows.Err(); err != nil {
		return err, &activities
	}
	return nil, &activities
}

// Follower queries
const (
	sqlInsertFollower = `INSERT INTO followers(domain, actor_uri, status, last_follow, created_at, updated_at)
                        VALUES (?, ?, ?, ?, ?, ?)`
	sqlUpdateFollower = `UPDATE followers SET status = ?, last_follow = ?, updated_at = ? WHERE domain = ? AND actor_uri = ?`
	sqlSelectFollower = `SELECT domain, actor_uri, status, last_follow, created_at, updated_at FROM followers WHERE domain = ? AND actor_uri = ?`
	// Exact domain match; "example.com" never picks up "example.com.evil.org"
	sqlSelectFollowersByDomain = `SELECT domain, actor_uri, status, last_follow, created_at, updated_at FROM followers WHERE domain = ? ORDER BY actor_uri ASC`
	sqlUpdateFollowerStatus    = `UPDATE followers SET status = ?, updated_at = ? WHERE domain = ? AND actor_uri = ?`
)

// GetOrCreateFollower upserts the follower record for (domain, actorURI),
// refreshing the stored Follow snapshot and reactivating on re-follow.
func (db *DB) GetOrCreateFollower(followedDomain, actorURI, lastFollow string) (error, *domain.Follower) {
	err, existing := db.ReadFollower(followedDomain, actorURI)
	now := time.Now()

	if err == nil && existing != nil {
		existing.Status = domain.FollowerActive
		existing.LastFollow = lastFollow
		existing.UpdatedAt = now
		err = db.wrapTransaction(func(tx *sql.Tx) error {
			_, err := tx.Exec(sqlUpdateFollower, existing.Status, existing.LastFollow, existing.UpdatedAt,
				followedDomain, actorURI)
			return err
		})
		if err != nil {
			return err, nil
		}
		return nil, existing
	}
	if err != sql.ErrNoRows {
		return err, nil
	}

	follower := &domain.Follower{
		Domain:     followedDomain,
		ActorURI:   actorURI,
		Status:     domain.FollowerActive,
		LastFollow: lastFollow,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollower, follower.Domain, follower.ActorURI,
			follower.Status, follower.LastFollow, follower.CreatedAt, follower.UpdatedAt)
		return err
	})
	if err != nil {
		return err, nil
	}
	return nil, follower
}

func (db *DB) ReadFollower(followedDomain, actorURI string) (error, *domain.Follower) {
	row := db.db.QueryRow(sqlSelectFollower, followedDomain, actorURI)
	var follower domain.Follower
	err := row.Scan(&follower.Domain, &follower.ActorURI, &follower.Status,
		&follower.LastFollow, &follower.CreatedAt, &follower.UpdatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, &follower
}

func (db *DB) ReadFollowersByDomain(followedDomain string) (error, *[]domain.Follower) {
	rows, err := db.db.Query(sqlSelectFollowersByDomain, followedDomain)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var followers []domain.Follower
	for rows.Next() {
		var follower domain.Follower
		if err := rows.Scan(&follower.Domain, &follower.ActorURI, &follower.Status,
			&follower.LastFollow, &follower.CreatedAt, &follower.UpdatedAt); err != nil {
			return err, &followers
		}
		followers = append(followers, follower)
	}
	if err = rows.Err(); err != nil {
		return err, &followers
	}
	return nil, &followers
}

func (db *DB) UpdateFollowerStatus(followedDomain, actorURI, status string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateFollowerStatus, status, time.Now(), followedDomain, actorURI)
		return err
	})
}

// Webmention task queue queries
const (
	sqlInsertWebmentionTask         = `INSERT INTO webmention_tasks(id, source, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlSelectPendingWebmentionTasks = `SELECT id, source, attempts, next_retry_at, created_at FROM webmention_tasks WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlSelectWebmentionTask         = `SELECT id, source, attempts, next_retry_at, created_at FROM webmention_tasks WHERE id = ?`
	sqlUpdateWebmentionTaskAttempt  = `UPDATE webmention_tasks SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteWebmentionTask         = `DELETE FROM webmention_tasks WHERE id = ?`
)

func (db *DB) EnqueueWebmentionTask(task *domain.WebmentionTask) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertWebmentionTask,
			task.Id.String(),
			task.Source,
			task.Attempts,
			task.NextRetryAt,
			task.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadPendingWebmentionTasks(limit int) (error, *[]domain.WebmentionTask) {
	rows, err := db.db.Query(sqlSelectPendingWebmentionTasks, time.Now(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var tasks []domain.WebmentionTask
	for rows.Next() {
		var task domain.WebmentionTask
		var idStr string
		if err := rows.Scan(&idStr, &task.Source, &task.Attempts, &task.NextRetryAt, &task.CreatedAt); err != nil {
			return err, &tasks
		}
		task.Id, _ = uuid.Parse(idStr)
		tasks = append(tasks, task)
	}
	if err = rows.Err(); err != nil {
		return err, &tasks
	}
	return nil, &tasks
}

func (db *DB) ReadWebmentionTask(id uuid.UUID) (error, *domain.WebmentionTask) {
	var task domain.WebmentionTask
	var idStr string
	row := db.db.QueryRow(sqlSelectWebmentionTask, id.String())
	if err := row.Scan(&idStr, &task.Source, &task.Attempts, &task.NextRetryAt, &task.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return err, nil
	}
	task.Id, _ = uuid.Parse(idStr)
	return nil, &task
}

func (db *DB) UpdateWebmentionTaskAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateWebmentionTaskAttempt, attempts, nextRetry, id.String())
		return err
	})
}

func (db *DB) DeleteWebmentionTask(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteWebmentionTask, id.String())
		return err
	})
}

// Connect opens a database at the given path and runs migrations. Used by
// GetDB for the default database and by tests with ":memory:".
func Connect(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if path == ":memory:" {
		// every connection gets its own in-memory database, so keep one
		sqlDB.SetMaxOpenConns(1)
	} else {
		// Configure connection pool for concurrent access
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	// Try to enable WAL2 mode, fall back to WAL if not supported
	var journalMode string
	err = sqlDB.QueryRow("PRAGMA journal_mode=WAL2").Scan(&journalMode)
	if err != nil || journalMode == "delete" {
		// WAL2 not supported, try regular WAL
		err = sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
		if err != nil {
			log.Printf("Warning: Failed to enable WAL mode: %v", err)
		}
	}

	// Optimize PRAGMAs for the delivery workload
	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA cache_size = -64000")
	sqlDB.Exec("PRAGMA temp_store = MEMORY")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")
	sqlDB.Exec("PRAGMA foreign_keys = ON")

	database := &DB{db: sqlDB}
	if err := database.RunMigrations(); err != nil {
		return nil, err
	}
	return database, nil
}

func GetDB() *DB {
	dbOnce.Do(func() {
		database, err := Connect(util.ResolveFilePath("database.db"))
		if err != nil {
			panic(err)
		}
		log.Printf("Database initialized with connection pooling (max 25 connections)")
		dbInstance = database
	})

	return dbInstance
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}
