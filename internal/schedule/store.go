package schedule

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/OneBusAway/go-gtfs"
	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"crowdcast.transitpulse.org/internal/logging"
)

//go:embed schema.sql
var ddl string

const maxArchiveBytes = 200 * 1024 * 1024

// StoreConfig points the Store at its database file.
type StoreConfig struct {
	// DBPath is a file path or ":memory:".
	DBPath string
}

// Store persists per-feed timetables in SQLite.
type Store struct {
	DB     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenStore opens (creating if needed) the schedule database.
func OpenStore(ctx context.Context, cfg StoreConfig, logger *slog.Logger) (*Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = ":memory:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening schedule database: %w", err)
	}

	if cfg.DBPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating schedule database: %w", err)
	}
	return &Store{DB: db, path: cfg.DBPath, logger: logger.With(slog.String("component", "schedule_store"))}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, "-- migrate") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL statement [%s]: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// ImportArchive parses a static GTFS zip and replaces the stored timetable
// for feed. An archive identical to the last import of the same source is
// skipped.
func (s *Store) ImportArchive(ctx context.Context, feed, source string, archive []byte) (*Index, error) {
	start := time.Now()
	sum := sha256.Sum256(archive)
	hash := hex.EncodeToString(sum[:])

	var prevHash, prevSource string
	err := s.DB.QueryRowContext(ctx,
		`SELECT file_hash, source FROM import_metadata WHERE feed = ?`, feed).Scan(&prevHash, &prevSource)
	switch {
	case err == nil && prevHash == hash && prevSource == source:
		logging.LogOperation(s.logger, "schedule_unchanged_skipping_import",
			slog.String("feed", feed), slog.String("hash", hash[:8]))
		return s.Load(ctx, feed)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("reading import metadata: %w", err)
	}

	static, err := gtfs.ParseStatic(archive, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parsing static GTFS for %s: %w", feed, err)
	}
	idx := BuildIndex(static)

	if err := s.replace(ctx, feed, hash, source, idx); err != nil {
		return nil, err
	}

	logging.LogOperation(s.logger, "schedule_import_completed",
		slog.String("feed", feed),
		slog.String("source", source),
		slog.Int("trains", idx.Trains()),
		slog.Int("warnings", len(static.Warnings)),
		slog.Duration("duration", time.Since(start)))
	return idx, nil
}

func (s *Store) replace(ctx context.Context, feed, hash, source string, idx *Index) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting schedule import: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, s.logger, "schedule_import")

	for _, table := range []string{"scheduled_stops", "stations"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE feed = ?`, feed); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	stationStmt, err := tx.PrepareContext(ctx, `INSERT INTO stations (feed, stop_id, name) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(stationStmt, s.logger, "stations_insert")
	for id, name := range idx.stations {
		if _, err := stationStmt.ExecContext(ctx, feed, id, name); err != nil {
			return fmt.Errorf("inserting station %s: %w", id, err)
		}
	}

	stopStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scheduled_stops (feed, train_number, seq, stop_id, stop_name, time_of_day) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(stopStmt, s.logger, "scheduled_stops_insert")
	for number, stops := range idx.trains {
		for seq, st := range stops {
			if _, err := stopStmt.ExecContext(ctx, feed, number, seq, st.StopID, st.StopName, int64(st.TimeOfDay/time.Second)); err != nil {
				return fmt.Errorf("inserting train %s: %w", number, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO import_metadata (feed, file_hash, source, imported_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(feed) DO UPDATE SET file_hash = excluded.file_hash, source = excluded.source, imported_at = excluded.imported_at`,
		feed, hash, source, time.Now().Unix()); err != nil {
		return fmt.Errorf("writing import metadata: %w", err)
	}
	return tx.Commit()
}

// Load reads the stored timetable for feed. A feed that was never imported
// yields an empty Index.
func (s *Store) Load(ctx context.Context, feed string) (*Index, error) {
	idx := &Index{trains: map[string][]Stop{}, stations: map[string]string{}}

	rows, err := s.DB.QueryContext(ctx, `SELECT stop_id, name FROM stations WHERE feed = ?`, feed)
	if err != nil {
		return nil, fmt.Errorf("loading stations: %w", err)
	}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			_ = rows.Close()
			return nil, err
		}
		idx.stations[id] = name
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = s.DB.QueryContext(ctx,
		`SELECT train_number, seq, stop_id, stop_name, time_of_day FROM scheduled_stops WHERE feed = ? ORDER BY train_number, seq`, feed)
	if err != nil {
		return nil, fmt.Errorf("loading scheduled stops: %w", err)
	}
	defer logging.SafeCloseWithLogging(rows, s.logger, "scheduled_stops_rows")
	for rows.Next() {
		var (
			number, stopID, stopName string
			seq                      int
			secs                     int64
		)
		if err := rows.Scan(&number, &seq, &stopID, &stopName, &secs); err != nil {
			return nil, err
		}
		idx.trains[number] = append(idx.trains[number], Stop{
			StopID:    stopID,
			StopName:  stopName,
			TimeOfDay: time.Duration(secs) * time.Second,
		})
	}
	return idx, rows.Err()
}

// Feeds lists feeds with a completed import.
func (s *Store) Feeds(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT feed FROM import_metadata`)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(rows, s.logger, "import_metadata_rows")
	var out []string
	for rows.Next() {
		var feed string
		if err := rows.Scan(&feed); err != nil {
			return nil, err
		}
		out = append(out, feed)
	}
	sort.Strings(out)
	return out, rows.Err()
}

// ImportFromSource reads a static archive from an http(s) URL or a local
// path and imports it for feed.
func (s *Store) ImportFromSource(ctx context.Context, feed, source string) (*Index, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = download(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("reading static GTFS %s: %w", source, err)
	}
	return s.ImportArchive(ctx, feed, source, data)
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("static GTFS download returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading static GTFS body: %w", err)
	}
	if int64(len(body)) > maxArchiveBytes {
		return nil, fmt.Errorf("static GTFS archive exceeds %d bytes", maxArchiveBytes)
	}
	return body, nil
}
