package vlm

import (
	"fmt"
	"os"
	"strings"
)

// ResolveAPIKey resolves the model API key. Precedence: the explicit value,
// then GEMINI_API_KEY and GOOGLE_API_KEY, then the key file.
func ResolveAPIKey(explicit, keyFile string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	if keyFile != "" {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return "", fmt.Errorf("vlm: read key file: %w", err)
		}
		key := strings.TrimSpace(string(data))
		if key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("vlm: no api key: set GEMINI_API_KEY or configure a key file")
}
