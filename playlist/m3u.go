// Package playlist reads and writes M3U playlists used to seed the queue.
package playlist

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"playd/model"
)

// Load parses an extended M3U file into track references. Relative entry
// paths are resolved against the playlist's directory. Comment lines
// other than #EXTINF are skipped.
func Load(path string) ([]model.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist: %w", err)
	}
	defer f.Close()

	base := filepath.Dir(path)
	var tracks []model.Track
	var pending model.Track

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "#EXTINF:") {
				pending = parseExtinf(line)
			}
			continue
		}

		entry := model.ResolveURI(line)
		if !filepath.IsAbs(entry) {
			entry = filepath.Join(base, entry)
		}
		track := pending
		track.Path = entry
		tracks = append(tracks, track)
		pending = model.Track{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}

	return tracks, nil
}

// parseExtinf extracts duration and "artist - title" from an EXTINF line.
// Malformed lines yield an empty annotation rather than an error.
func parseExtinf(line string) model.Track {
	rest := strings.TrimPrefix(line, "#EXTINF:")
	parts := strings.SplitN(rest, ",", 2)

	var track model.Track
	if secs, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil && secs > 0 {
		track.Duration = time.Duration(secs) * time.Second
	}
	if len(parts) == 2 {
		if artist, title, found := strings.Cut(parts[1], " - "); found {
			track.Artist = strings.TrimSpace(artist)
			track.Title = strings.TrimSpace(title)
		} else {
			track.Title = strings.TrimSpace(parts[1])
		}
	}
	return track
}

// Save writes tracks as an extended M3U file.
func Save(path string, tracks []model.Track) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create playlist: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "#EXTM3U")
	for _, t := range tracks {
		if t.Title != "" {
			secs := int(t.Duration / time.Second)
			if t.Artist != "" {
				fmt.Fprintf(w, "#EXTINF:%d,%s - %s\n", secs, t.Artist, t.Title)
			} else {
				fmt.Fprintf(w, "#EXTINF:%d,%s\n", secs, t.Title)
			}
		}
		fmt.Fprintln(w, t.Path)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write playlist: %w", err)
	}
	return nil
}
