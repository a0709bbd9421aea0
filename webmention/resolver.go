package webmention

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MarkWieczorek/bridgy-fed/activitypub"
	"github.com/MarkWieczorek/bridgy-fed/domain"
	"github.com/MarkWieczorek/bridgy-fed/util"
)

// ResolvedTarget pairs a delivery ledger row with the inbox it goes to.
type ResolvedTarget struct {
	Activity *domain.Activity
	InboxURL string
}

// resolveTargets computes the inboxes this request delivers to. Explicit
// targets come from the entry's in-reply-to links, or from the object of a
// like/share/follow. With no explicit targets the mention fans out to the
// author's followers, which runs async: outside task mode the request is
// enqueued and an accepted Outcome is returned instead of targets.
func (in *Ingestor) resolveTargets(r *request) ([]ResolvedTarget, *Outcome, error) {
	candidates, hadCandidates := in.explicitTargets(r)

	if len(candidates) == 0 {
		if hadCandidates {
			// Every target pointed at a silo. Tell the sender why
			// nothing federated instead of silently fanning out.
			return nil, nil, &IngestError{
				Kind:    KindUnsupportedTarget,
				Message: "Silo responses are not yet supported.",
			}
		}
		if r.mode != ModeTask {
			outcome, err := in.acceptForFanout(r)
			return nil, outcome, err
		}
		targets, err := in.followerTargets(r)
		return targets, nil, err
	}

	var targets []ResolvedTarget
	for _, candidate := range candidates {
		target, err := in.resolveExplicitTarget(r, candidate)
		if err != nil {
			var gw *activitypub.GatewayError
			if errors.As(err, &gw) {
				return nil, nil, err
			}
			log.Printf("Resolver: skipping %s: %v", candidate, err)
			continue
		}
		targets = append(targets, target)
	}
	return targets, nil, nil
}

// explicitTargets extracts candidate target URLs from the source activity
// and drops any on the blocklist. The second return says whether any
// candidates existed before filtering.
func (in *Ingestor) explicitTargets(r *request) ([]string, bool) {
	candidates := activitypub.GetURLs(r.sourceAS1, "inReplyTo")
	if len(candidates) == 0 {
		if _, ok := activitypub.VerbsWithObject[activitypub.Verb(r.sourceAS1)]; ok {
			candidates = activitypub.GetURLs(r.sourceAS1, "object")
		}
	}

	var kept []string
	for _, candidate := range candidates {
		d, err := util.DomainFromLink(candidate)
		if err != nil {
			log.Printf("Resolver: skipping unparseable target %s", candidate)
			continue
		}
		if in.Conf.IsBlocklisted(d) {
			log.Printf("Resolver: silo target %s", candidate)
			continue
		}
		kept = append(kept, candidate)
	}
	return kept, len(candidates) > 0
}

// resolveExplicitTarget fetches the target object and discovers its inbox,
// creating (or reusing) the ledger row for this source/target pair.
func (in *Ingestor) resolveExplicitTarget(r *request, targetURL string) (ResolvedTarget, error) {
	targetObj, finalURL, err := activitypub.GetAS2(targetURL)
	if err != nil {
		return ResolvedTarget{}, err
	}

	inbox, err := activitypub.InboxFromObject(targetObj, finalURL)
	if err != nil {
		return ResolvedTarget{}, err
	}

	dbErr, activity := in.DB.GetOrCreateActivity(r.sourceURL, finalURL, r.sourceDomain, r.snapshot)
	if dbErr != nil {
		return ResolvedTarget{}, dbErr
	}

	if raw, jsonErr := json.Marshal(targetObj); jsonErr == nil {
		activity.TargetAS2 = string(raw)
	}
	return ResolvedTarget{Activity: activity, InboxURL: inbox}, nil
}

// acceptForFanout enqueues the request for the async worker and builds the
// accepted response.
func (in *Ingestor) acceptForFanout(r *request) (*Outcome, error) {
	now := time.Now()
	task := &domain.WebmentionTask{
		Id:          uuid.New(),
		Source:      r.sourceURL,
		Attempts:    0,
		NextRetryAt: now,
		CreatedAt:   now,
	}
	if err := in.DB.EnqueueWebmentionTask(task); err != nil {
		return nil, err
	}
	log.Printf("Resolver: enqueued fan-out for %s", r.sourceURL)

	body := "Delivering to followers..."
	if r.isProfileUpdate() {
		body = "Updating profile on followers' instances..."
	}
	return &Outcome{Status: 202, Body: body}, nil
}

// followerTargets scans the author's followers and resolves one inbox per
// follower, deduplicated so shared inboxes get a single delivery.
func (in *Ingestor) followerTargets(r *request) ([]ResolvedTarget, error) {
	err, followers := in.DB.ReadFollowersByDomain(r.sourceDomain)
	if err != nil {
		return nil, err
	}

	inboxes := make(map[string]bool)
	for _, follower := range *followers {
		if follower.Status != domain.FollowerActive {
			continue
		}
		inbox := followerInbox(follower)
		if inbox == "" {
			continue
		}
		inboxes[inbox] = true
	}

	sorted := make([]string, 0, len(inboxes))
	for inbox := range inboxes {
		sorted = append(sorted, inbox)
	}
	sort.Strings(sorted)

	var targets []ResolvedTarget
	for _, inbox := range sorted {
		dbErr, activity := in.DB.GetOrCreateActivity(r.sourceURL, inbox, r.sourceDomain, r.snapshot)
		if dbErr != nil {
			return nil, dbErr
		}
		targets = append(targets, ResolvedTarget{Activity: activity, InboxURL: inbox})
	}
	log.Printf("Resolver: %d follower inboxes for %s", len(targets), r.sourceDomain)
	return targets, nil
}

// followerInbox picks a delivery inbox from the follower's stored Follow
// snapshot. Shared inboxes win so big instances get one POST per batch.
func followerInbox(follower domain.Follower) string {
	var follow map[string]any
	if err := json.Unmarshal([]byte(follower.LastFollow), &follow); err != nil {
		log.Printf("Resolver: bad follow snapshot for %s", follower.ActorURI)
		return ""
	}

	actor, ok := follow["actor"].(map[string]any)
	if !ok {
		return ""
	}

	if endpoints, ok := actor["endpoints"].(map[string]any); ok {
		if shared, ok := endpoints["sharedInbox"].(string); ok && shared != "" {
			return shared
		}
	}
	if public, ok := actor["publicInbox"].(string); ok && public != "" {
		return public
	}
	if inbox, ok := actor["inbox"].(string); ok && inbox != "" {
		return inbox
	}
	return ""
}
