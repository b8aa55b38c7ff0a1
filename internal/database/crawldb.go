package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/webcrawler/internal/model"
	"github.com/nao1215/webcrawler/internal/urlutil"
)

// FileName is the name of the database file inside the data directory.
const FileName = "webcrawler.db"

// CrawlDB provides SQLite-based storage for finished crawl reports.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist,
// ErrDatabaseNotFound is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; batch crawls save concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per finished crawl
	CREATE TABLE IF NOT EXISTS crawl_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_url TEXT NOT NULL,
		host TEXT NOT NULL,
		depth INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		downloaded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_start_url ON crawl_reports(start_url);
	CREATE INDEX IF NOT EXISTS idx_reports_host ON crawl_reports(host);
	CREATE INDEX IF NOT EXISTS idx_reports_started ON crawl_reports(started_at);

	-- One row per URL a crawl downloaded or failed on
	CREATE TABLE IF NOT EXISTS crawl_pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id INTEGER NOT NULL REFERENCES crawl_reports(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		UNIQUE(report_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON crawl_pages(url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveReport stores a finished crawl report and its pages in one
// transaction, and sets report.ID to the new row id.
func (cdb *CrawlDB) SaveReport(ctx context.Context, report *model.CrawlReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	// A failed start URL has no host; it is still worth keeping.
	host, _ := urlutil.HostOf(report.StartURL) //nolint:errcheck // empty host is stored

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	s := report.Summary()
	result, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_reports (start_url, host, depth, status, started_at, finished_at, downloaded, failed, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.StartURL,
		host,
		report.Depth,
		string(report.Status),
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		s.Downloaded,
		s.Failed,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save crawl report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get report id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO crawl_pages (report_id, url, kind, message) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range report.Downloaded {
		if _, err := stmt.ExecContext(ctx, id, u, "", ""); err != nil {
			return 0, fmt.Errorf("failed to save page %s: %w", u, err)
		}
	}
	for _, e := range report.Errors {
		if _, err := stmt.ExecContext(ctx, id, e.URL, e.Kind, e.Message); err != nil {
			return 0, fmt.Errorf("failed to save page %s: %w", e.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crawl report: %w", err)
	}

	report.ID = id
	return id, nil
}

// GetReport retrieves a crawl report by its database ID.
// Returns nil without error when no report has that ID.
func (cdb *CrawlDB) GetReport(ctx context.Context, id int64) (*model.CrawlReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT report_json FROM crawl_reports WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl report: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	report.ID = id

	return &report, nil
}

// ReportMetadata summarizes a stored report without loading its pages.
type ReportMetadata struct {
	// ID is the unique identifier of the report in the database.
	ID int64 `json:"id"`

	// StartURL is the seed of the crawl.
	StartURL string `json:"start_url"`

	// Host is the host of StartURL, empty if it was malformed.
	Host string `json:"host"`

	// Depth is the requested crawl depth.
	Depth int `json:"depth"`

	// Status is how the crawl ended.
	Status model.CrawlStatus `json:"status"`

	// StartedAt and FinishedAt bracket the crawl.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Downloaded and Failed are the page counts.
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`
}

// ListFilter narrows ListReports. The zero value lists every report.
type ListFilter struct {
	// StartURL matches reports of this exact seed.
	StartURL string

	// Host matches reports whose seed is on this host.
	Host string

	// Limit caps the number of rows; zero means no limit.
	Limit int
}

// ListReports returns report metadata, newest first.
func (cdb *CrawlDB) ListReports(ctx context.Context, filter ListFilter) ([]ReportMetadata, error) {
	query := `
	SELECT id, start_url, host, depth, status, started_at, finished_at, downloaded, failed
	FROM crawl_reports
	WHERE 1=1
	`
	args := make([]any, 0, 3)

	if filter.StartURL != "" {
		query += " AND start_url = ?"
		args = append(args, filter.StartURL)
	}
	if filter.Host != "" {
		query += " AND host = ?"
		args = append(args, filter.Host)
	}

	query += " ORDER BY started_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl reports: %w", err)
	}
	defer rows.Close()

	var results []ReportMetadata
	for rows.Next() {
		var meta ReportMetadata
		var status, started, finished string

		if err := rows.Scan(
			&meta.ID,
			&meta.StartURL,
			&meta.Host,
			&meta.Depth,
			&status,
			&started,
			&finished,
			&meta.Downloaded,
			&meta.Failed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan report metadata: %w", err)
		}

		meta.Status = model.CrawlStatus(status)
		meta.StartedAt = parseTimestamp(started)
		meta.FinishedAt = parseTimestamp(finished)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// PageRecord is one appearance of a URL in a stored crawl.
type PageRecord struct {
	// ReportID is the crawl the page belongs to.
	ReportID int64 `json:"report_id"`

	// URL is the page URL.
	URL string `json:"url"`

	// Kind is the failure kind; empty when the page was downloaded.
	Kind string `json:"kind,omitempty"`

	// Message is the failure text.
	Message string `json:"message,omitempty"`

	// CrawledAt is when the crawl containing the page started.
	CrawledAt time.Time `json:"crawled_at"`
}

// Downloaded reports whether the page was fetched successfully.
func (p PageRecord) Downloaded() bool {
	return p.Kind == ""
}

// PageHistory returns every stored crawl outcome of url, newest first.
func (cdb *CrawlDB) PageHistory(ctx context.Context, url string) ([]PageRecord, error) {
	query := `
	SELECT p.report_id, p.url, p.kind, p.message, r.started_at
	FROM crawl_pages p
	JOIN crawl_reports r ON r.id = p.report_id
	WHERE p.url = ?
	ORDER BY r.started_at DESC, p.report_id DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get page history: %w", err)
	}
	defer rows.Close()

	var results []PageRecord
	for rows.Next() {
		var rec PageRecord
		var started string

		if err := rows.Scan(&rec.ReportID, &rec.URL, &rec.Kind, &rec.Message, &started); err != nil {
			return nil, fmt.Errorf("failed to scan page record: %w", err)
		}

		rec.CrawledAt = parseTimestamp(started)
		results = append(results, rec)
	}

	return results, rows.Err()
}

// storedTimeFormat sorts lexically in time order for UTC values.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimeFormat)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimeFormat,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
	time.RFC3339Nano,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
