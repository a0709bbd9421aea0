package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery status of an Activity ledger entry.
const (
	StatusNew      = "new"
	StatusComplete = "complete"
	StatusError    = "error"
)

const (
	DirectionOut = "out"

	ProtocolActivityPub = "activitypub"
)

// Follower lifecycle states.
const (
	FollowerActive   = "active"
	FollowerInactive = "inactive"
)

// Activity is the ledger entry for one source->target delivery. There is at
// most one Activity per (Source, Target) pair; repeated webmentions for the
// same pair update the existing entry.
type Activity struct {
	Id        uuid.UUID
	Source    string
	Target    string
	Domain    string // local domain that owns the source
	Direction string
	Protocol  string
	Status    string
	SourceMF2 string // serialized parsed entry, compared on re-publish
	TargetAS2 string // cached fetched target object
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Activity) ToString() string {
	return fmt.Sprintf("\n\tSource: %s \n\tTarget: %s \n\tStatus: %s \n\tUpdatedAt: %s)",
		a.Source, a.Target, a.Status, a.UpdatedAt)
}

// Follower is a remote subscriber of a local domain, keyed by
// (Domain, ActorURI). LastFollow holds the Follow activity that created it,
// which is where the subscriber's inbox endpoints are read from.
type Follower struct {
	Domain     string
	ActorURI   string
	Status     string
	LastFollow string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// WebmentionTask is a durable fan-out task. Follower fan-out runs off the
// synchronous request path; tasks are retried until delivered or given up.
type WebmentionTask struct {
	Id          uuid.UUID
	Source      string
	Attempts    int
	NextRetryAt time.Time
	CreatedAt   time.Time
}
