// Package driveid validates and extracts Google Drive file identifiers.
package driveid

import "regexp"

// Drive file IDs are URL-safe base64, typically 28-44 characters.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{28,44}$`)

// URL patterns that embed a file or folder ID, checked in order.
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`^([a-zA-Z0-9_-]+)$`),
}

// Valid reports whether s looks like a Drive file or folder ID.
func Valid(s string) bool {
	return idPattern.MatchString(s)
}

// FromURL extracts a file or folder ID from a Drive URL. A bare ID is
// returned as-is. Returns "" when nothing matches.
func FromURL(url string) string {
	for _, p := range urlPatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}
