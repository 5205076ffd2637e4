package gateway

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadManifest reads the precache manifest: one upstream asset path per
// line, blank lines and #-comments ignored. Paths are normalized to begin
// with a slash.
func LoadManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			line = "/" + line
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("manifest %s lists no assets", path)
	}
	return paths, nil
}

// DefaultManifest is the built-in asset list used when no manifest file is
// configured. It mirrors the page shell the client ships with.
func DefaultManifest() []string {
	return []string{
		"/",
		"/index.html",
		"/restaurant.html",
		"/css/styles.css",
		"/js/main.js",
		"/js/dbhelper.js",
		"/js/restaurant_info.js",
	}
}
