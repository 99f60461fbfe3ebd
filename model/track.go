package model

import (
	"strings"
	"time"
)

// Track identifies a playable item. Immutable once placed in the queue.
type Track struct {
	Path     string        `json:"path"`
	Title    string        `json:"title,omitempty"`
	Artist   string        `json:"artist,omitempty"`
	Album    string        `json:"album,omitempty"`
	Duration time.Duration `json:"duration,omitempty"` // pre-fetched; zero if unknown
}

// TrackFromURI builds a Track from a file path or file:// URI.
func TrackFromURI(uri string) Track {
	return Track{Path: ResolveURI(uri)}
}

// ResolveURI strips a file:// scheme prefix, leaving a local path.
func ResolveURI(uri string) string {
	if strings.HasPrefix(uri, "file://") {
		return strings.TrimPrefix(uri, "file://")
	}
	return uri
}

// String returns a short human-readable description of the track.
func (t Track) String() string {
	if t.Artist != "" && t.Title != "" {
		return t.Artist + " - " + t.Title
	}
	if t.Title != "" {
		return t.Title
	}
	return t.Path
}
