package shield

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BearerAuth returns middleware that requires a valid API key in the
// Authorization header (Bearer scheme). Accepted keys are configured as
// bcrypt hashes so the plaintext never sits in a config file. Paths under
// any exclude prefix pass through unauthenticated.
func BearerAuth(keyHashes []string, excludePrefixes ...string) func(http.Handler) http.Handler {
	hashes := make([][]byte, 0, len(keyHashes))
	for _, h := range keyHashes {
		if h != "" {
			hashes = append(hashes, []byte(h))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			key := bearerToken(r)
			if key != "" {
				for _, h := range hashes {
					if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"reason_code": "http_4xx",
				"message":     "missing or invalid API key",
			})
		})
	}
}

// HashKey produces a bcrypt hash for an API key, for operators provisioning
// the host configuration.
func HashKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}
