package webmention

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MarkWieczorek/bridgy-fed/activitypub"
	"github.com/MarkWieczorek/bridgy-fed/db"
	"github.com/MarkWieczorek/bridgy-fed/domain"
	"github.com/MarkWieczorek/bridgy-fed/mf2"
	"github.com/MarkWieczorek/bridgy-fed/util"
)

// Mode says which surface an ingestion request arrived on. Task mode runs
// the follower fan-out inline instead of enqueueing it again.
type Mode int

const (
	ModeSync Mode = iota
	ModeTask
	ModeInteractive
)

// Ingestor converts inbound webmentions into outbound federated deliveries.
type Ingestor struct {
	DB   *db.DB
	Conf *util.AppConfig
}

func NewIngestor(database *db.DB, conf *util.AppConfig) *Ingestor {
	return &Ingestor{DB: database, Conf: conf}
}

// request carries the state of one ingestion through the pipeline stages.
// Nothing here is shared across requests.
type request struct {
	mode         Mode
	sourceURL    string
	sourceDomain string
	snapshot     string         // serialized parsed source page
	sourceAS1    map[string]any // normalized activity
	sourceAS2    map[string]any // delivery payload, built lazily per batch
	user         *domain.User
}

// isProfileUpdate reports whether the source is the domain's own home page,
// which means "push my updated profile to my followers' instances".
func (r *request) isProfileUpdate() bool {
	return strings.TrimRight(r.sourceURL, "/") == "https://"+r.sourceDomain
}

// Ingest handles one webmention: validates the source, parses it (or
// synthesizes a profile Update for home-page mentions), resolves delivery
// targets and delivers to each. The returned Outcome is either a remote
// server's response passed through, an accepted-for-async notice, or a
// neutral no-targets result.
func (in *Ingestor) Ingest(source string, mode Mode) (*Outcome, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, badRequest("Missing required parameter: source")
	}

	sourceDomain, err := util.DomainFromLink(source)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("Bad source URL: %s", source))
	}

	r := &request{mode: mode, sourceURL: source, sourceDomain: sourceDomain}
	log.Printf("Ingest: webmention from %s", r.sourceDomain)

	if r.isProfileUpdate() {
		return in.ingestProfileUpdate(r)
	}
	return in.ingestContent(r)
}

// ingestProfileUpdate synthesizes an Update wrapping the user's own actor.
// No page fetch happens; the profile comes from the stored User record.
func (in *Ingestor) ingestProfileUpdate(r *request) (*Outcome, error) {
	err, user := in.DB.GetOrCreateUser(r.sourceDomain)
	if err != nil {
		return nil, asIngestError(err)
	}
	r.user = user

	updateID := fmt.Sprintf("%s#update-%s", r.sourceURL, time.Now().UTC().Format(time.RFC3339))
	r.sourceAS1 = map[string]any{
		"objectType": "activity",
		"verb":       "update",
		"id":         updateID,
	}
	r.sourceAS2 = activitypub.PostprocessAS2(map[string]any{
		"type":   "Update",
		"id":     updateID,
		"object": activitypub.ActorForUser(user, in.Conf),
	}, user, in.Conf)

	return in.tryDelivery(r)
}

// ingestContent fetches and parses the source page and routes its entry.
func (in *Ingestor) ingestContent(r *request) (*Outcome, error) {
	body, finalURL, fetchErr := fetchSource(r.sourceURL)
	if fetchErr != nil {
		return nil, fetchErr
	}
	if finalURL != "" {
		r.sourceURL = finalURL
		if d, err := util.DomainFromLink(finalURL); err == nil {
			r.sourceDomain = d
		}
	}

	fragment := util.Fragment(r.sourceURL)
	parsed := mf2.ParsePage(body, r.sourceURL)
	entry := mf2.FindEntry(parsed, fragment)

	if fragment != "" && entry == nil {
		return nil, parseError(fmt.Sprintf("#%s not found in %s", fragment, r.sourceURL))
	}

	// The backlink doubles as the webmention trust signal and as the
	// source's consent to federate.
	if !strings.Contains(string(body), in.Conf.Conf.Domain) {
		return nil, &IngestError{
			Kind:    KindMissingBacklink,
			Message: fmt.Sprintf("Couldn't find link to %s", strings.TrimRight(in.Conf.HostURL(""), "/")),
		}
	}

	if entry == nil {
		return nil, parseError(fmt.Sprintf("No microformats2 found on %s", r.sourceURL))
	}

	r.snapshot = mf2.Serialize(parsed)
	r.sourceAS1 = mf2.EntryToActivity(entry, r.sourceURL)

	err, user := in.DB.GetOrCreateUser(r.sourceDomain)
	if err != nil {
		return nil, asIngestError(err)
	}
	r.user = user

	return in.tryDelivery(r)
}

// tryDelivery resolves the target set and delivers to each target.
func (in *Ingestor) tryDelivery(r *request) (*Outcome, error) {
	targets, accepted, err := in.resolveTargets(r)
	if err != nil {
		return nil, asIngestError(err)
	}
	if accepted != nil {
		return accepted, nil
	}
	if len(targets) == 0 {
		return &Outcome{Status: 200, Body: "No ActivityPub targets"}, nil
	}

	outcome, err := in.deliverAll(r, targets)
	if err != nil {
		return nil, asIngestError(err)
	}
	return outcome, nil
}
