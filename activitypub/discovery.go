package activitypub

import (
	"fmt"

	"github.com/MarkWieczorek/bridgy-fed/util"
)

// NoActorError means the target object carries neither an inbox nor any
// actor/attributedTo reference to chase one through.
type NoActorError struct {
	URL string
}

func (e *NoActorError) Error() string {
	return fmt.Sprintf("target %s has no actor or attributedTo with URL or id", e.URL)
}

// AmbiguousActorError means the actor reference is something other than an
// embedded object or a plain identifier string.
type AmbiguousActorError struct {
	URL   string
	Actor any
}

func (e *AmbiguousActorError) Error() string {
	return fmt.Sprintf("target %s actor or attributedTo has unexpected url or id: %v", e.URL, e.Actor)
}

// NoInboxError means an actor was resolved but exposes no inbox. Callers log
// and skip the target.
type NoInboxError struct {
	URL string
}

func (e *NoInboxError) Error() string {
	return fmt.Sprintf("actor for target %s has no inbox", e.URL)
}

// InboxFromObject resolves a fetched AS2 object to its delivery inbox. The
// object may expose an inbox directly, embed an actor that does, or point at
// an actor to fetch separately. The returned inbox is absolute, resolved
// against finalURL (the object's post-redirect location).
func InboxFromObject(obj map[string]any, finalURL string) (string, error) {
	inboxURL, _ := obj["inbox"].(string)

	var actorRef string
	if inboxURL == "" {
		actor := firstOf(obj, "actor", "attributedTo")

		switch a := actor.(type) {
		case map[string]any:
			inboxURL, _ = a["inbox"].(string)
			if u, ok := a["url"].(string); ok && u != "" {
				actorRef = u
			} else if id, ok := a["id"].(string); ok {
				actorRef = id
			}
		case string:
			actorRef = a
		}

		if inboxURL == "" && actorRef == "" {
			if actor == nil {
				return "", &NoActorError{URL: finalURL}
			}
			return "", &AmbiguousActorError{URL: finalURL, Actor: actor}
		}
	}

	if inboxURL == "" {
		// second fetch: the actor itself
		actorObj, _, err := GetAS2(actorRef)
		if err != nil {
			return "", err
		}
		inboxURL, _ = actorObj["inbox"].(string)
	}

	if inboxURL == "" {
		return "", &NoInboxError{URL: finalURL}
	}

	return util.ResolveURL(finalURL, inboxURL), nil
}

// firstOf returns the first non-nil of the named fields, unwrapping a
// single-element list.
func firstOf(obj map[string]any, fields ...string) any {
	for _, field := range fields {
		v, ok := obj[field]
		if !ok || v == nil {
			continue
		}
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		return v
	}
	return nil
}
