package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/sensiblebit/devcert"
	_ "modernc.org/sqlite"
)

// memoryDSN is an in-memory database. Each connection to :memory: is a
// separate database, so callers must pin the pool to one connection.
const memoryDSN = "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"

// IssuanceRecord is one row of the issuance ledger.
type IssuanceRecord struct {
	ID          int64          `db:"id" json:"id"`
	Serial      string         `db:"serial_number" json:"serial_number"`
	CommonName  string         `db:"common_name" json:"common_name"`
	AltNames    types.JSONText `db:"alt_names" json:"alt_names"`
	Mode        string         `db:"mode" json:"mode"`
	Fingerprint string         `db:"sha256_fingerprint" json:"sha256_fingerprint"`
	NotAfter    string         `db:"not_after" json:"not_after"`
	IssuedAt    string         `db:"issued_at" json:"issued_at"`
	BaseName    string         `db:"base_name" json:"base_name"`
	Outputs     string         `db:"outputs" json:"outputs"`
}

// Ledger records issued certificates in a SQLite database.
type Ledger struct {
	*sqlx.DB
}

// OpenLedger opens the ledger at path, creating it if needed. An empty path
// opens a throwaway in-memory ledger.
func OpenLedger(path string) (*Ledger, error) {
	dsn := memoryDSN
	if path != "" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &Ledger{DB: db}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing ledger schema: %w", err)
	}
	slog.Debug("ledger opened", "path", path)
	return l, nil
}

func (l *Ledger) initSchema() error {
	_, err := l.Exec(`
		CREATE TABLE IF NOT EXISTS issuances (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			serial_number      TEXT NOT NULL UNIQUE,
			common_name        TEXT NOT NULL,
			alt_names          TEXT,
			mode               TEXT NOT NULL,
			sha256_fingerprint TEXT NOT NULL,
			not_after          TEXT NOT NULL,
			issued_at          TEXT NOT NULL,
			base_name          TEXT NOT NULL,
			outputs            TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating issuances table: %w", err)
	}
	return nil
}

// NewIssuanceRecord describes the certificate of a finished run.
func NewIssuanceRecord(cfg Config, art Artifacts, outputs OutputSet, now time.Time) (IssuanceRecord, error) {
	cert, err := devcert.ParsePEMCertificate(art.Cert)
	if err != nil {
		return IssuanceRecord{}, fmt.Errorf("reading issued certificate: %w", err)
	}
	names, err := devcert.AltNames(cert.Extensions)
	if err != nil {
		return IssuanceRecord{}, fmt.Errorf("reading alternative names: %w", err)
	}
	sans, err := json.Marshal(names)
	if err != nil {
		return IssuanceRecord{}, fmt.Errorf("marshaling alternative names: %w", err)
	}
	return IssuanceRecord{
		Serial:      cert.SerialNumber.String(),
		CommonName:  cert.Subject.CommonName,
		AltNames:    types.JSONText(sans),
		Mode:        art.Mode.String(),
		Fingerprint: devcert.CertFingerprint(cert),
		NotAfter:    cert.NotAfter.UTC().Format(time.RFC3339),
		IssuedAt:    now.UTC().Format(time.RFC3339),
		BaseName:    cfg.BaseName,
		Outputs:     outputs.String(),
	}, nil
}

// Record inserts rec into the ledger.
func (l *Ledger) Record(ctx context.Context, rec IssuanceRecord) error {
	_, err := l.NamedExecContext(ctx, `
		INSERT INTO issuances (serial_number, common_name, alt_names, mode, sha256_fingerprint, not_after, issued_at, base_name, outputs)
		VALUES (:serial_number, :common_name, :alt_names, :mode, :sha256_fingerprint, :not_after, :issued_at, :base_name, :outputs)
	`, rec)
	if err != nil {
		return fmt.Errorf("recording issuance: %w", err)
	}
	return nil
}

// List returns the most recent issuances first. A limit of zero or less
// returns all of them.
func (l *Ledger) List(ctx context.Context, limit int) ([]IssuanceRecord, error) {
	query := "SELECT * FROM issuances ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var recs []IssuanceRecord
	if err := l.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("listing issuances: %w", err)
	}
	return recs, nil
}
