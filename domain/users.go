package domain

import (
	"fmt"
	"time"
)

// User represents a local IndieWeb site that federates through this bridge.
// Users are keyed by their web domain, one per site.
type User struct {
	Domain        string
	WebPublicKey  string
	WebPrivateKey string
	CreatedAt     time.Time
}

func (u *User) ToString() string {
	return fmt.Sprintf("\n\tDomain: %s \n\tCreatedAt: %s)", u.Domain, u.CreatedAt)
}

// ActorURI returns the federated identifier the bridge exposes for this user.
func (u *User) ActorURI(host string) string {
	return fmt.Sprintf("https://%s/%s", host, u.Domain)
}

// HomePageURL returns the user's own site, which doubles as its profile page.
func (u *User) HomePageURL() string {
	return fmt.Sprintf("https://%s/", u.Domain)
}
