package repo

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"workinbox/internal/domain"
	"workinbox/internal/events"
	"workinbox/internal/inbox"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

// ImportSummary reports what a single import batch wrote.
type ImportSummary struct {
	BatchID   string `json:"batch_id"`
	Domain    string `json:"domain"`
	Imported  int    `json:"imported"`
	Anonymous int    `json:"anonymous"`
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ImportRecords upserts raw records for one domain. Records are keyed by
// their resolved source id; records without one get a generated key so
// they are still kept.
func (r Repo) ImportRecords(ctx context.Context, domainName string, recs []domain.Record, actorID string) (ImportSummary, error) {
	if !domain.IsDomain(domainName) {
		return ImportSummary{}, fmt.Errorf("unknown domain %q", domainName)
	}
	summary := ImportSummary{BatchID: uuid.NewString(), Domain: domainName}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return summary, err
	}
	defer tx.Rollback()

	importedAt := r.now().UTC().Format(time.RFC3339)
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		id := inbox.SourceID(domainName, rec)
		if id == "" {
			id = "anon-" + uuid.NewString()
			summary.Anonymous++
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return summary, fmt.Errorf("marshal record %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO records(domain,id,payload_json,batch_id,imported_at) VALUES (?,?,?,?,?)
			ON CONFLICT(domain,id) DO UPDATE SET payload_json=excluded.payload_json, batch_id=excluded.batch_id, imported_at=excluded.imported_at`,
			domainName, id, string(data), summary.BatchID, importedAt); err != nil {
			return summary, fmt.Errorf("upsert record %s: %w", id, err)
		}
		summary.Imported++
	}
	w := events.Writer{Now: r.Now}
	if err := w.Append(ctx, tx, "records.imported", "domain", domainName, actorID, events.EventPayload{
		"batch_id":  summary.BatchID,
		"imported":  summary.Imported,
		"anonymous": summary.Anonymous,
	}); err != nil {
		return summary, err
	}
	if err := tx.Commit(); err != nil {
		return summary, err
	}
	return summary, nil
}

// ListRecords returns the stored records of a domain in import order.
func (r Repo) ListRecords(ctx context.Context, domainName string) ([]domain.Record, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT payload_json FROM records WHERE domain=? ORDER BY rowid`, domainName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func decodeRecord(payload string) (domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var rec domain.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// Bundle loads every domain concurrently. Domains without stored records
// stay nil so the aggregator skips their adapters.
func (r Repo) Bundle(ctx context.Context) (domain.Bundle, error) {
	collections := make([][]domain.Record, len(domain.Domains))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range domain.Domains {
		g.Go(func() error {
			recs, err := r.ListRecords(gctx, name)
			if err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			collections[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Bundle{}, err
	}
	var b domain.Bundle
	for i, name := range domain.Domains {
		b = b.WithCollection(name, collections[i])
	}
	return b, nil
}

// ClearDomain removes all stored records of a domain and returns how many
// were deleted.
func (r Repo) ClearDomain(ctx context.Context, domainName, actorID string) (int, error) {
	if !domain.IsDomain(domainName) {
		return 0, fmt.Errorf("unknown domain %q", domainName)
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE domain=?`, domainName)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	w := events.Writer{Now: r.Now}
	if err := w.Append(ctx, tx, "records.cleared", "domain", domainName, actorID, events.EventPayload{"deleted": n}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// CountRecords returns stored record counts per domain. Domains without
// records are absent.
func (r Repo) CountRecords(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT domain, COUNT(*) FROM records GROUP BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		res[name] = n
	}
	return res, rows.Err()
}

// LatestEvents returns up to n events, newest first. An empty evtType
// matches every type.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	args := []any{}
	if evtType != "" {
		query += ` WHERE type=?`
		args = append(args, evtType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// GetEvent fetches one event by id.
func (r Repo) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	var e domain.Event
	err := r.DB.QueryRowContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id=?`, id).
		Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}
