package origin

import "math/rand"

// Identity is the browser fingerprint a client presents to the origin.
// It is replaced wholesale when a ban signal forces a rotation, never
// mutated in place.
type Identity struct {
	UserAgent string
}

// Pool of desktop user agents rotated on ban signals.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// NewIdentity picks a random user agent from the pool.
func NewIdentity() Identity {
	return Identity{UserAgent: userAgents[rand.Intn(len(userAgents))]}
}
