package activitypub

// Helpers for the normalized (ActivityStreams 1 shaped) activity maps that
// come out of the mf2 conversion.

// VerbsWithObject are the verbs whose "object" URLs are delivery targets.
var VerbsWithObject = map[string]bool{
	"favorite": true,
	"follow":   true,
	"like":     true,
	"share":    true,
}

// Verb returns the activity's verb, if any.
func Verb(as1 map[string]any) string {
	v, _ := as1["verb"].(string)
	return v
}

// GetURLs collects the URL values of a field that may hold a string, an
// object with a url/id, or a list of either.
func GetURLs(as1 map[string]any, field string) []string {
	value, ok := as1[field]
	if !ok {
		return nil
	}

	var out []string
	values, ok := value.([]any)
	if !ok {
		values = []any{value}
	}
	for _, v := range values {
		switch t := v.(type) {
		case string:
			if t != "" {
				out = append(out, t)
			}
		case []string:
			out = append(out, t...)
		case map[string]any:
			if u, ok := t["url"].(string); ok && u != "" {
				out = append(out, u)
			} else if id, ok := t["id"].(string); ok && id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

// GetURL returns the first URL of a field.
func GetURL(as1 map[string]any, field string) string {
	urls := GetURLs(as1, field)
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}
