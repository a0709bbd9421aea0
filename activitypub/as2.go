package activitypub

import (
	"fmt"

	"github.com/MarkWieczorek/bridgy-fed/domain"
	"github.com/MarkWieczorek/bridgy-fed/util"
)

const (
	ContextURL = "https://www.w3.org/ns/activitystreams"
	PublicURL  = "https://www.w3.org/ns/activitystreams#Public"

	// ContentType is the ActivityPub media type for requests and responses
	ContentType = `application/activity+json`
	// ContentTypeLD is the alternate AS2 media type some servers send
	ContentTypeLD = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
)

// activityTypes are AS2 types that are activities rather than objects.
var activityTypes = map[string]bool{
	"Accept": true, "Announce": true, "Create": true, "Delete": true,
	"Follow": true, "Like": true, "Reject": true, "Undo": true, "Update": true,
}

// IsActivity reports whether an AS2 type names an activity.
func IsActivity(typ string) bool {
	return activityTypes[typ]
}

// Type returns the AS2 type of an object.
func Type(as2 map[string]any) string {
	t, _ := as2["type"].(string)
	return t
}

// Object returns the embedded object of an activity, if it is embedded.
func Object(as2 map[string]any) map[string]any {
	obj, _ := as2["object"].(map[string]any)
	return obj
}

// FromAS1 translates a normalized AS1 activity into its AS2 counterpart.
// Plain posts come back as bare Note/Article objects; PostprocessAS2 wraps
// those in a Create.
func FromAS1(as1 map[string]any) map[string]any {
	verb := Verb(as1)

	switch verb {
	case "like", "favorite":
		return verbActivity(as1, "Like")
	case "share":
		return verbActivity(as1, "Announce")
	case "follow":
		return verbActivity(as1, "Follow")
	case "update":
		as2 := map[string]any{"type": "Update"}
		if id, ok := as1["id"].(string); ok {
			as2["id"] = id
		}
		if obj, ok := as1["object"].(map[string]any); ok {
			as2["object"] = FromAS1(obj)
		} else if obj, ok := as1["object"]; ok {
			as2["object"] = obj
		}
		return as2
	}

	// plain object: note, article, comment, person
	as2 := map[string]any{}
	switch as1["objectType"] {
	case "article":
		as2["type"] = "Article"
	case "person":
		as2["type"] = "Person"
	default:
		as2["type"] = "Note"
	}
	copyField(as1, as2, "id", "id")
	copyField(as1, as2, "url", "url")
	copyField(as1, as2, "content", "content")
	copyField(as1, as2, "displayName", "name")
	copyField(as1, as2, "published", "published")

	if replyTo := GetURLs(as1, "inReplyTo"); len(replyTo) > 0 {
		as2["inReplyTo"] = replyTo[0]
	}
	if actor, ok := as1["actor"].(map[string]any); ok {
		as2["attributedTo"] = FromAS1(actor)
	}

	return as2
}

func verbActivity(as1 map[string]any, typ string) map[string]any {
	as2 := map[string]any{"type": typ}
	copyField(as1, as2, "id", "id")
	copyField(as1, as2, "url", "url")
	if obj := GetURL(as1, "object"); obj != "" {
		as2["object"] = obj
	}
	return as2
}

func copyField(src, dst map[string]any, srcKey, dstKey string) {
	if v, ok := src[srcKey]; ok {
		dst[dstKey] = v
	}
}

// PostprocessAS2 prepares a translated activity for delivery: bare objects
// are wrapped in a Create, the AS2 context is set, and Create/Update
// activities are addressed to the public collection.
func PostprocessAS2(as2 map[string]any, user *domain.User, conf *util.AppConfig) map[string]any {
	typ := Type(as2)
	if !IsActivity(typ) {
		id, _ := as2["id"].(string)
		wrapped := map[string]any{
			"type":   "Create",
			"id":     fmt.Sprintf("%s#create", id),
			"object": as2,
		}
		as2 = wrapped
		typ = "Create"
	}

	as2["@context"] = ContextURL

	if typ == "Create" || typ == "Update" {
		if _, ok := as2["to"]; !ok {
			as2["to"] = []string{PublicURL}
		}
	}

	if user != nil {
		if _, ok := as2["actor"]; !ok {
			as2["actor"] = conf.HostURL(user.Domain)
		}
	}

	return as2
}
