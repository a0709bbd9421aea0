// Package mf2 adapts parsed microformats2 pages into the normalized activity
// shape the delivery pipeline works with.
package mf2

import (
	"bytes"
	"encoding/json"
	"net/url"

	"willnorris.com/go/microformats"
)

// ParsePage parses the microformats2 structure of an HTML page. The base URL
// is used to absolutize relative property URLs.
func ParsePage(body []byte, base string) *microformats.Data {
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}
	return microformats.Parse(bytes.NewReader(body), baseURL)
}

// FindEntry returns the first h-entry on the page. If fragment is non-empty,
// only an entry whose id attribute matches the fragment counts; nil means the
// fragment (or any entry) was not found.
func FindEntry(data *microformats.Data, fragment string) *microformats.Microformat {
	return findEntry(data.Items, fragment)
}

func findEntry(items []*microformats.Microformat, fragment string) *microformats.Microformat {
	for _, item := range items {
		if hasType(item, "h-entry") && (fragment == "" || item.ID == fragment) {
			return item
		}
		if found := findEntry(item.Children, fragment); found != nil {
			return found
		}
	}
	return nil
}

func hasType(item *microformats.Microformat, typ string) bool {
	for _, t := range item.Type {
		if t == typ {
			return true
		}
	}
	return false
}

// EntryToActivity converts an h-entry to a normalized activity map. The
// shape follows ActivityStreams 1: "verb" carries the entry's intent (like,
// share, follow or empty for a plain post), "object"/"inReplyTo" carry
// target URL lists.
func EntryToActivity(entry *microformats.Microformat, defaultURL string) map[string]any {
	activity := map[string]any{
		"objectType": "note",
	}

	entryURL := firstString(entry.Properties["url"])
	if entryURL == "" {
		// federation ids are derived from the url, so it must be present
		entryURL = defaultURL
	}
	activity["id"] = entryURL
	activity["url"] = entryURL

	if content := PropertyContent(entry.Properties["content"]); content != "" {
		activity["content"] = content
	}
	if name := firstString(entry.Properties["name"]); name != "" {
		activity["displayName"] = name
		if activity["content"] != nil && name != activity["content"] {
			activity["objectType"] = "article"
		}
	}
	if published := firstString(entry.Properties["published"]); published != "" {
		activity["published"] = published
	}

	if replyTo := stringList(entry.Properties["in-reply-to"]); len(replyTo) > 0 {
		activity["objectType"] = "comment"
		activity["inReplyTo"] = replyTo
	}

	switch {
	case len(entry.Properties["like-of"]) > 0:
		activity["verb"] = "like"
		activity["object"] = stringList(entry.Properties["like-of"])
	case len(entry.Properties["repost-of"]) > 0:
		activity["verb"] = "share"
		activity["object"] = stringList(entry.Properties["repost-of"])
	case len(entry.Properties["follow-of"]) > 0:
		activity["verb"] = "follow"
		activity["object"] = stringList(entry.Properties["follow-of"])
	}

	if author := firstMicroformat(entry.Properties["author"]); author != nil {
		actor := map[string]any{"objectType": "person"}
		if name := firstString(author.Properties["name"]); name != "" {
			actor["displayName"] = name
		}
		if u := firstString(author.Properties["url"]); u != "" {
			actor["url"] = u
		}
		activity["actor"] = actor
	}

	return activity
}

// Serialize renders a parsed page for storage in the ledger.
func Serialize(data *microformats.Data) string {
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(b)
}

// ExtractContent pulls the first entry's content value out of a serialized
// page snapshot. Used to decide whether a re-published page actually changed.
func ExtractContent(snapshot string) string {
	if snapshot == "" {
		return ""
	}
	var page struct {
		Items []struct {
			Properties map[string][]any `json:"properties"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(snapshot), &page); err != nil {
		return ""
	}
	if len(page.Items) == 0 {
		return ""
	}
	return PropertyContent(page.Items[0].Properties["content"])
}

// PropertyContent extracts the plain-text value of an e-content property,
// which parses as either a plain string or an {html, value} map.
func PropertyContent(values []any) string {
	if len(values) == 0 {
		return ""
	}
	switch v := values[0].(type) {
	case string:
		return v
	case map[string]string:
		return v["value"]
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return s
		}
	}
	return ""
}

func firstString(values []any) string {
	for _, v := range values {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func stringList(values []any) []string {
	var out []string
	for _, v := range values {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case *microformats.Microformat:
			// h-cite or similar wrapping the URL
			if u := firstString(t.Properties["url"]); u != "" {
				out = append(out, u)
			} else if t.Value != "" {
				out = append(out, t.Value)
			}
		case map[string]any:
			if u, ok := t["url"].(string); ok {
				out = append(out, u)
			}
		}
	}
	return out
}

func firstMicroformat(values []any) *microformats.Microformat {
	for _, v := range values {
		if m, ok := v.(*microformats.Microformat); ok {
			return m
		}
	}
	return nil
}
