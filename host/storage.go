package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolveDataPath validates a caller-supplied path against the data root.
// Relative paths are joined under the root; absolute paths must already be
// inside it. Anything escaping the root is rejected — the caller maps the
// error to not_actionable.
func (s *Service) resolveDataPath(requested string) (string, error) {
	root, err := filepath.Abs(s.cfg.DataRoot)
	if err != nil {
		return "", fmt.Errorf("host: data root: %w", err)
	}

	p := requested
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)

	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", fmt.Errorf("host: path %q escapes data root %q", requested, root)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("host: create parent dir: %w", err)
	}
	return p, nil
}
