package repository

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"playd/db"

	_ "modernc.org/sqlite"
)

func openTestLibrary(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "library.db")
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open test library: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	schema := `CREATE TABLE songs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		album TEXT,
		artist TEXT,
		albumartist TEXT,
		track INTEGER,
		disc INTEGER,
		genre TEXT,
		url TEXT UNIQUE,
		unavailable INTEGER DEFAULT 0,
		length INTEGER
	)`
	if _, err := conn.Exec(schema); err != nil {
		t.Fatalf("create songs table: %v", err)
	}

	rows := []struct {
		title, album, artist, albumartist, genre, url string
		track, disc, length, unavailable              int
	}{
		{"Roygbiv", "Music Has the Right", "Boards of Canada", "", "IDM", "file:///music/boc/roygbiv.mp3", 8, 1, 149, 0},
		{"Telephasic Workshop", "Music Has the Right", "Boards of Canada", "", "IDM", "file:///music/boc/telephasic.mp3", 4, 1, 393, 0},
		{"Flim", "Come to Daddy", "Aphex Twin", "", "IDM", "file:///music/aphex/flim.mp3", 4, 1, 177, 0},
		{"Gone Song", "Lost", "Aphex Twin", "", "IDM", "file:///music/aphex/gone.mp3", 1, 1, 100, 1},
		{"Svefn-g-englar", "Agaetis Byrjun", "Sigur Ros", "", "Post-Rock", "file:///music/sigur/svefn.flac", 2, 1, 608, 0},
	}
	for _, r := range rows {
		_, err := conn.Exec(
			`INSERT INTO songs (title, album, artist, albumartist, track, disc, genre, url, unavailable, length)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.title, r.album, r.artist, r.albumartist, r.track, r.disc, r.genre, r.url, r.unavailable, r.length)
		if err != nil {
			t.Fatalf("insert %s: %v", r.title, err)
		}
	}

	old := db.DB
	db.DB = conn
	t.Cleanup(func() { db.DB = old })
	return conn
}

func TestTracksByFilter(t *testing.T) {
	openTestLibrary(t)
	repo := NewSQLiteLibraryRepository()

	t.Run("no filter returns available tracks", func(t *testing.T) {
		tracks, err := repo.TracksByFilter(Filter{})
		if err != nil {
			t.Fatalf("TracksByFilter: %v", err)
		}
		if len(tracks) != 4 {
			t.Fatalf("got %d tracks, want 4 (unavailable excluded)", len(tracks))
		}
		for _, track := range tracks {
			if track.Title == "Gone Song" {
				t.Error("unavailable track returned")
			}
		}
	})

	t.Run("artist filter", func(t *testing.T) {
		tracks, err := repo.TracksByFilter(Filter{Artist: "Boards"})
		if err != nil {
			t.Fatalf("TracksByFilter: %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("got %d tracks, want 2", len(tracks))
		}
		// Album order: disc then track number.
		if tracks[0].Title != "Telephasic Workshop" || tracks[1].Title != "Roygbiv" {
			t.Errorf("order = %s, %s", tracks[0].Title, tracks[1].Title)
		}
	})

	t.Run("genre filter", func(t *testing.T) {
		tracks, err := repo.TracksByFilter(Filter{Genre: "Post-Rock"})
		if err != nil {
			t.Fatalf("TracksByFilter: %v", err)
		}
		if len(tracks) != 1 || tracks[0].Title != "Svefn-g-englar" {
			t.Errorf("tracks = %+v", tracks)
		}
	})

	t.Run("url scheme stripped and length converted", func(t *testing.T) {
		tracks, err := repo.TracksByFilter(Filter{Album: "Come to Daddy"})
		if err != nil {
			t.Fatalf("TracksByFilter: %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("got %d tracks, want 1", len(tracks))
		}
		if tracks[0].Path != "/music/aphex/flim.mp3" {
			t.Errorf("path = %s, want file:// stripped", tracks[0].Path)
		}
		if tracks[0].Duration != 177*time.Second {
			t.Errorf("duration = %s, want 2m57s", tracks[0].Duration)
		}
	})
}

func TestTrackByPath(t *testing.T) {
	openTestLibrary(t)
	repo := NewSQLiteLibraryRepository()

	track, err := repo.TrackByPath("/music/boc/roygbiv.mp3")
	if err != nil {
		t.Fatalf("TrackByPath: %v", err)
	}
	if track == nil || track.Title != "Roygbiv" {
		t.Errorf("track = %+v, want Roygbiv", track)
	}

	missing, err := repo.TrackByPath("/music/nope.mp3")
	if err != nil {
		t.Fatalf("TrackByPath(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("missing track = %+v, want nil", missing)
	}
}

func TestCount(t *testing.T) {
	openTestLibrary(t)
	repo := NewSQLiteLibraryRepository()

	n, err := repo.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
}
