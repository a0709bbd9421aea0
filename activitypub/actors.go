package activitypub

import (
	"fmt"

	"github.com/MarkWieczorek/bridgy-fed/domain"
	"github.com/MarkWieczorek/bridgy-fed/util"
)

// ActorForUser builds the AS2 Person the bridge publishes for a local
// domain. This is the profile representation pushed to followers' instances
// when the user's home page sends a self webmention.
func ActorForUser(user *domain.User, conf *util.AppConfig) map[string]any {
	actorURI := conf.HostURL(user.Domain)
	return map[string]any{
		"@context":          ContextURL,
		"type":              "Person",
		"id":                actorURI,
		"url":               user.HomePageURL(),
		"preferredUsername": user.Domain,
		"inbox":             fmt.Sprintf("%s/inbox", actorURI),
		"outbox":            fmt.Sprintf("%s/outbox", actorURI),
		"publicKey": map[string]any{
			"id":           fmt.Sprintf("%s#key", actorURI),
			"owner":        actorURI,
			"publicKeyPem": user.WebPublicKey,
		},
	}
}
