package webmention

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/MarkWieczorek/bridgy-fed/activitypub"
	"github.com/MarkWieczorek/bridgy-fed/domain"
	"github.com/MarkWieczorek/bridgy-fed/mf2"
	"github.com/MarkWieczorek/bridgy-fed/util"
)

// deliverAll posts the signed activity to every resolved target and records
// each attempt in the ledger. Targets whose stored content is unchanged are
// skipped so edits that don't touch the entry don't re-notify anyone.
func (in *Ingestor) deliverAll(r *request, targets []ResolvedTarget) (*Outcome, error) {
	payload := in.deliveryPayload(r)

	var lastSuccess *activitypub.Response
	var lastErr error
	delivered := 0

	for _, target := range targets {
		activity := target.Activity

		if activity.Status == domain.StatusComplete {
			if unchangedContent(activity.SourceMF2, r.snapshot) {
				log.Printf("Delivery: %s unchanged for %s, skipping", r.sourceURL, target.InboxURL)
				continue
			}
			payload = promoteToUpdate(payload)
		}
		if activitypub.Type(payload) == "Update" {
			payload = stampUpdated(payload)
		}

		if err := in.recordFollow(r, activity, payload); err != nil {
			log.Printf("Delivery: couldn't record follower for %s: %v", activity.Target, err)
		}

		resp, err := activitypub.SignedPost(target.InboxURL, payload, r.user, in.Conf)
		if err != nil {
			activity.Status = domain.StatusError
			lastErr = err
		} else {
			activity.Status = domain.StatusComplete
			lastSuccess = resp
			delivered++
		}

		if r.snapshot != "" {
			activity.SourceMF2 = r.snapshot
		}
		if dbErr := in.DB.UpdateActivityDelivery(activity); dbErr != nil {
			log.Printf("Delivery: couldn't persist %s: %v", activity.ToString(), dbErr)
		}
	}

	log.Printf("Delivery: %d/%d sent for %s", delivered, len(targets), r.sourceURL)
	return aggregate(lastSuccess, lastErr)
}

// deliveryPayload builds the signed AS2 body once per batch.
func (in *Ingestor) deliveryPayload(r *request) map[string]any {
	if r.sourceAS2 != nil {
		return r.sourceAS2
	}
	as2 := activitypub.FromAS1(r.sourceAS1)
	if _, ok := as2["actor"]; !ok && activitypub.IsActivity(activitypub.Type(as2)) {
		as2["actor"] = in.Conf.HostURL(r.sourceDomain)
	}
	r.sourceAS2 = activitypub.PostprocessAS2(as2, r.user, in.Conf)
	return r.sourceAS2
}

// unchangedContent compares the entry content of two stored page snapshots.
// Empty snapshots never count as unchanged.
func unchangedContent(oldSnapshot, newSnapshot string) bool {
	if oldSnapshot == "" || newSnapshot == "" {
		return false
	}
	oldContent := mf2.ExtractContent(oldSnapshot)
	newContent := mf2.ExtractContent(newSnapshot)
	return oldContent != "" && oldContent == newContent
}

// promoteToUpdate rewrites a Create for an already-delivered activity into
// an Update, so receivers treat the re-publish as an edit.
func promoteToUpdate(payload map[string]any) map[string]any {
	if activitypub.Type(payload) != "Create" {
		return payload
	}

	update := make(map[string]any, len(payload))
	for k, v := range payload {
		update[k] = v
	}
	update["type"] = "Update"
	return update
}

// stampUpdated ensures the wrapped object of an Update carries an updated
// timestamp. Some receivers drop Updates without one.
func stampUpdated(payload map[string]any) map[string]any {
	obj, ok := payload["object"].(map[string]any)
	if !ok {
		return payload
	}
	if _, ok := obj["updated"]; ok {
		return payload
	}

	stamped := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		stamped[k] = v
	}
	stamped["updated"] = time.Now().UTC().Format(time.RFC3339)

	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	out["object"] = stamped
	return out
}

// recordFollow registers the followed account when this delivery is a
// Follow, so the user's later fan-outs reach it. The stored snapshot keeps
// the remote account under actor because that is whose inbox fan-out needs.
func (in *Ingestor) recordFollow(r *request, activity *domain.Activity, payload map[string]any) error {
	if activitypub.Type(payload) != "Follow" {
		return nil
	}

	var remote map[string]any
	if activity.TargetAS2 != "" {
		if err := json.Unmarshal([]byte(activity.TargetAS2), &remote); err != nil {
			return err
		}
	}

	dest := ""
	if remote != nil {
		if id, ok := remote["id"].(string); ok {
			dest = id
		} else if url, ok := remote["url"].(string); ok {
			dest = url
		}
	}
	if dest == "" {
		dest = activitypub.GetURL(r.sourceAS1, "object")
	}
	if dest == "" {
		return nil
	}

	snapshot, err := json.Marshal(map[string]any{
		"type":   "Follow",
		"actor":  remote,
		"object": dest,
	})
	if err != nil {
		return err
	}

	targetDomain, err := util.DomainFromLink(activity.Target)
	if err != nil {
		targetDomain = r.sourceDomain
	}
	dbErr, _ := in.DB.GetOrCreateFollower(targetDomain, dest, string(snapshot))
	return dbErr
}

// aggregate folds a batch of per-target results into one response. The last
// success wins, even over a gateway failure on a sibling target; with no
// successes a gateway failure is re-raised, an HTTP-level rejection is
// passed through, and anything else surfaces as text.
func aggregate(lastSuccess *activitypub.Response, lastErr error) (*Outcome, error) {
	if lastSuccess != nil {
		body := lastSuccess.Body
		if body == "" {
			body = "Sent!"
		}
		return &Outcome{Status: lastSuccess.StatusCode, Body: body}, nil
	}

	if lastErr != nil {
		var gw *activitypub.GatewayError
		if errors.As(lastErr, &gw) {
			return nil, lastErr
		}
		var httpErr *activitypub.HTTPError
		if errors.As(lastErr, &httpErr) {
			return &Outcome{Status: httpErr.StatusCode, Body: httpErr.Body}, nil
		}
		return &Outcome{Status: 200, Body: lastErr.Error()}, nil
	}

	// Every target was skipped as unchanged.
	return &Outcome{Status: 200, Body: "Content unchanged, nothing to deliver"}, nil
}
