package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"playd/db"
	"playd/model"
)

// Filter narrows a library query. Empty fields match everything; non-empty
// fields are matched with a case-insensitive substring search, mirroring how
// the library indexer tags files.
type Filter struct {
	Artist string
	Album  string
	Genre  string
}

// LibraryRepository defines read-only access to the track library.
type LibraryRepository interface {
	TracksByFilter(filter Filter) ([]model.Track, error)
	TrackByPath(path string) (*model.Track, error)
	Count() (int, error)
}

// sqliteLibraryRepository implements LibraryRepository over the songs table.
type sqliteLibraryRepository struct {
	DB *sql.DB
}

// NewSQLiteLibraryRepository creates a new instance of sqliteLibraryRepository.
func NewSQLiteLibraryRepository() LibraryRepository {
	return &sqliteLibraryRepository{DB: db.DB}
}

const trackColumns = `url, title, artist, album, length`

// TracksByFilter retrieves available tracks matching the filter, ordered the
// way an album plays: by artist, album, disc and track number.
func (r *sqliteLibraryRepository) TracksByFilter(filter Filter) ([]model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM songs WHERE unavailable = 0`
	args := make([]any, 0, 3)

	if filter.Artist != "" {
		query += ` AND (artist LIKE ? OR albumartist LIKE ?)`
		pattern := "%" + filter.Artist + "%"
		args = append(args, pattern, pattern)
	}
	if filter.Album != "" {
		query += ` AND album LIKE ?`
		args = append(args, "%"+filter.Album+"%")
	}
	if filter.Genre != "" {
		query += ` AND genre LIKE ?`
		args = append(args, "%"+filter.Genre+"%")
	}
	query += ` ORDER BY artist, album, disc, track`

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query library tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in TracksByFilter: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in TracksByFilter: %w", err)
	}

	return tracks, nil
}

// TrackByPath retrieves a single track by its file path. The library stores
// file:// URLs, so both the raw path and its URL form are tried.
func (r *sqliteLibraryRepository) TrackByPath(path string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM songs WHERE url = ? OR url = ?`
	row := r.DB.QueryRow(query, path, "file://"+path)

	track, err := scanTrack(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not in the library
		}
		return nil, fmt.Errorf("failed to scan track by path %s: %w", path, err)
	}
	return &track, nil
}

// Count reports how many available tracks the library holds.
func (r *sqliteLibraryRepository) Count() (int, error) {
	var n int
	err := r.DB.QueryRow(`SELECT COUNT(*) FROM songs WHERE unavailable = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count library tracks: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (model.Track, error) {
	var (
		url                  rawURL
		title, artist, album sql.NullString
		length               sql.NullInt64
	)
	if err := row.Scan(&url, &title, &artist, &album, &length); err != nil {
		return model.Track{}, err
	}
	return model.Track{
		Path:     url.path(),
		Title:    title.String,
		Artist:   artist.String,
		Album:    album.String,
		Duration: time.Duration(length.Int64) * time.Second,
	}, nil
}

// rawURL scans a songs.url value and strips the file:// scheme the indexer
// prepends to local paths.
type rawURL string

func (u *rawURL) Scan(src any) error {
	switch v := src.(type) {
	case string:
		*u = rawURL(v)
	case []byte:
		*u = rawURL(v)
	case nil:
		*u = ""
	default:
		return fmt.Errorf("unsupported url type %T", src)
	}
	return nil
}

func (u rawURL) path() string {
	return strings.TrimPrefix(string(u), "file://")
}
