package hub

import (
	"os"
	"strings"
	"sync"
)

var (
	originsOnce sync.Once
	origins     map[string]bool
)

// allowedOrigins returns the set of origins accepted for WebSocket upgrades.
// Defaults cover local development; production origins come from
// CORS_ALLOWED_ORIGINS (comma-separated).
func allowedOrigins() map[string]bool {
	originsOnce.Do(func() {
		origins = map[string]bool{
			"http://localhost:3000": true,
			"http://localhost:8080": true,
			"http://127.0.0.1:3000": true,
			"http://127.0.0.1:8080": true,
		}

		if env := os.Getenv("CORS_ALLOWED_ORIGINS"); env != "" {
			for _, origin := range strings.Split(env, ",") {
				origins[strings.TrimSpace(origin)] = true
			}
		}
	})
	return origins
}
