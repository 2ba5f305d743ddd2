// Package store persists memory items in SQLite, one table per kind, with
// FTS5 lexical indexes and brute-force vector search alongside.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/tempomem/tempomem/internal/model"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the persistence boundary every memory-item operation goes
// through. Retrieval, write, decay, and admin all depend on this interface
// rather than on *SQLiteStore directly, so they can be tested against a
// fake.
type Store interface {
	Create(ctx context.Context, item model.Item) error
	UpdateContent(ctx context.Context, kind model.Kind, id string, tenant model.Tenant, apply func(model.Item) error, now time.Time) error
	Delete(ctx context.Context, kind model.Kind, id string, tenant model.Tenant) error
	GetByIDs(ctx context.Context, kind model.Kind, tenant model.Tenant, ids []string) ([]model.Item, error)
	LexicalSearch(ctx context.Context, kind model.Kind, tenant model.Tenant, query string, limit int) ([]model.Item, map[string]float64, error)
	VectorSearch(ctx context.Context, kind model.Kind, tenant model.Tenant, vector []float32, limit int) ([]model.Item, map[string]float64, error)
	Recent(ctx context.Context, kind model.Kind, tenant model.Tenant, limit int) ([]model.Item, error)
	ApplyRetrievalEffects(ctx context.Context, kind model.Kind, id string, now time.Time, rehearse bool, newImportance float64) error
	ScanTenant(ctx context.Context, kind model.Kind, tenant model.Tenant, afterID string, afterCreatedAt time.Time, batchSize int) ([]model.Item, error)
	DeleteMany(ctx context.Context, kind model.Kind, ids []string) error
	CountItems(ctx context.Context, kind model.Kind, tenant model.Tenant) (int64, error)
	Distribution(ctx context.Context, tenant model.Tenant) (map[model.Kind]int64, error)
	Close() error
}

// SQLiteStore is the production Store backed by modernc.org/sqlite, the
// pure-Go driver, so the binary needs no cgo toolchain.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// Open creates or migrates the SQLite database at dsn and returns a ready
// Store. dsn is a modernc.org/sqlite data source, e.g. "file:tempomem.db?_pragma=busy_timeout(5000)".
func Open(ctx context.Context, dsn string, log *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoid SQLITE_BUSY storms

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, log: log}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func tenantWhere(tenant model.Tenant) (string, []any) {
	clause := "organization_id = ?"
	args := []any{tenant.OrganizationID}
	if tenant.UserID != nil {
		clause += " AND user_id = ?"
		args = append(args, *tenant.UserID)
	}
	return clause, args
}

func (s *SQLiteStore) Create(ctx context.Context, item model.Item) error {
	spec, ok := kindSpecs[item.Kind()]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, item.Kind())
	}
	base := item.Temporal()
	metaVal, err := encodeMetadata(base.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	contentVals, err := insertValues(item)
	if err != nil {
		return err
	}

	columns := append(append([]string{}, baseColumns...), spec.contentColumns...)
	placeholders := strings.TrimRight(strings.Repeat("?,", len(columns)), ",")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", spec.table, strings.Join(columns, ", "), placeholders)

	args := []any{
		base.ID, base.OrganizationID, nullableUserID(base.UserID), base.CreatedAt.UTC().Format(time.RFC3339Nano),
		base.ImportanceScore, base.AccessCount, nullableTime(base.LastAccessedAt), base.RehearsalCount,
		metaVal, base.LastModified.Timestamp.UTC().Format(time.RFC3339Nano), base.LastModified.Operation,
	}
	args = append(args, contentVals...)

	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%w: insert into %s: %v", ErrBackendUnavailable, spec.table, err)
	}
	return nil
}

// UpdateContent loads the current item, lets apply mutate its content
// fields in place (never access_count/rehearsal_count/last_accessed_at,
// which callers must not touch per the write-path invariants), and writes
// it back along with a fresh last_modified stamp.
func (s *SQLiteStore) UpdateContent(ctx context.Context, kind model.Kind, id string, tenant model.Tenant, apply func(model.Item) error, now time.Time) error {
	items, err := s.GetByIDs(ctx, kind, tenant, []string{id})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	item := items[0]
	if err := apply(item); err != nil {
		return err
	}

	spec := kindSpecs[kind]
	base := item.Temporal()
	metaVal, err := encodeMetadata(base.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	contentVals, err := insertValues(item)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(spec.contentColumns)+3)
	args := make([]any, 0, len(spec.contentColumns)+5)
	sets = append(sets, "importance_score = ?", "metadata = ?", "last_modified_at = ?", "last_modified_op = ?")
	args = append(args, base.ImportanceScore, metaVal, now.UTC().Format(time.RFC3339Nano), "update")
	for i, col := range spec.contentColumns {
		sets = append(sets, col+" = ?")
		args = append(args, contentVals[i])
	}
	whereClause, whereArgs := tenantWhere(tenant)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND %s", spec.table, strings.Join(sets, ", "), whereClause)
	args = append(args, id)
	args = append(args, whereArgs...)

	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", ErrBackendUnavailable, spec.table, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, kind model.Kind, id string, tenant model.Tenant) error {
	spec, ok := kindSpecs[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}
	whereClause, whereArgs := tenantWhere(tenant)
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = ? AND %s", spec.table, whereClause)
	args := append([]any{id}, whereArgs...)
	// Delete is idempotent: deleting an id that's already gone is a no-op
	// success, not ErrNotFound.
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%w: delete from %s: %v", ErrBackendUnavailable, spec.table, err)
	}
	return nil
}

func (s *SQLiteStore) GetByIDs(ctx context.Context, kind model.Kind, tenant model.Tenant, ids []string) ([]model.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	spec, ok := kindSpecs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}
	columns := append(append([]string{}, baseColumns...), spec.contentColumns...)
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	whereClause, whereArgs := tenantWhere(tenant)
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE id IN (%s) AND %s",
		strings.Join(columns, ", "), spec.table, placeholders, whereClause)

	args := make([]any, 0, len(ids)+len(whereArgs))
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, whereArgs...)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrBackendUnavailable, spec.table, err)
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		item, err := scanItem(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.table, err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// LexicalSearch ranks candidates by SQLite FTS5's bm25() function. FTS5
// returns bm25 negated (lower is better), so the returned score is
// sign-flipped to a non-negative value where higher is better, the scale
// callers normalize via scoring.NormalizeLexical.
func (s *SQLiteStore) LexicalSearch(ctx context.Context, kind model.Kind, tenant model.Tenant, query string, limit int) ([]model.Item, map[string]float64, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil, nil
	}
	columns := append(append([]string{}, prefixed("t", baseColumns)...), prefixed("t", spec.contentColumns)...)
	whereClause, whereArgs := tenantWhere(tenant)
	whereClause = prefixColumns(whereClause, "t")
	stmt := fmt.Sprintf(
		`SELECT %s, -bm25(%s) AS score FROM %s JOIN %s t ON t.rowid = %s.rowid
		 WHERE %s MATCH ? AND %s ORDER BY score DESC LIMIT ?`,
		strings.Join(columns, ", "), spec.fts, spec.fts, spec.table, spec.fts, spec.fts, whereClause)

	args := []any{query}
	args = append(args, whereArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fts query %s: %v", ErrBackendUnavailable, spec.fts, err)
	}
	defer rows.Close()

	return s.scanScored(kind, rows)
}

// VectorSearch does a brute-force cosine-similarity scan: SQLite has no
// native vector index, so every row in the tenant's slice of the table is
// decoded and compared in Go.
func (s *SQLiteStore) VectorSearch(ctx context.Context, kind model.Kind, tenant model.Tenant, vector []float32, limit int) ([]model.Item, map[string]float64, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}
	if len(vector) == 0 {
		return nil, nil, nil
	}
	columns := append(append([]string{}, baseColumns...), spec.contentColumns...)
	whereClause, whereArgs := tenantWhere(tenant)
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(columns, ", "), spec.table, whereClause)

	rows, err := s.db.QueryContext(ctx, stmt, whereArgs...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: query %s: %v", ErrBackendUnavailable, spec.table, err)
	}
	defer rows.Close()

	type scored struct {
		item  model.Item
		score float64
	}
	var candidates []scored
	target := padOrTruncate(vector)
	for rows.Next() {
		item, err := scanItem(kind, rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", spec.table, err)
		}
		best := 0.0
		for _, emb := range itemEmbeddings(item) {
			if len(emb) == 0 {
				continue
			}
			if sim := cosineSimilarity(target, emb); sim > best {
				best = sim
			}
		}
		candidates = append(candidates, scored{item: item, score: best})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	// partial selection sort for the top `limit` — candidate sets per tenant
	// are expected to stay small enough that a full sort is unnecessary overhead.
	for i := 0; i < len(candidates) && i < limit; i++ {
		maxIdx := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].score > candidates[maxIdx].score {
				maxIdx = j
			}
		}
		candidates[i], candidates[maxIdx] = candidates[maxIdx], candidates[i]
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	items := make([]model.Item, 0, limit)
	scores := make(map[string]float64, limit)
	for i := 0; i < limit; i++ {
		items = append(items, candidates[i].item)
		scores[candidates[i].item.Identity()] = candidates[i].score
	}
	return items, scores, nil
}

func itemEmbeddings(item model.Item) [][]float32 {
	switch v := item.(type) {
	case *model.ChatMessage:
		return [][]float32{v.ContentEmbedding}
	case *model.EpisodicEvent:
		return [][]float32{v.SummaryEmbedding, v.DetailsEmbedding}
	case *model.SemanticItem:
		return [][]float32{v.SummaryEmbedding, v.DetailsEmbedding}
	case *model.ProceduralItem:
		return [][]float32{v.DescriptionEmbedding}
	case *model.ResourceItem:
		return [][]float32{v.DescriptionEmbedding}
	case *model.KnowledgeVaultItem:
		return [][]float32{v.ContentEmbedding}
	default:
		return nil
	}
}

func (s *SQLiteStore) Recent(ctx context.Context, kind model.Kind, tenant model.Tenant, limit int) ([]model.Item, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}
	columns := append(append([]string{}, baseColumns...), spec.contentColumns...)
	whereClause, whereArgs := tenantWhere(tenant)
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY created_at DESC LIMIT ?",
		strings.Join(columns, ", "), spec.table, whereClause)
	args := append(whereArgs, limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrBackendUnavailable, spec.table, err)
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		item, err := scanItem(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.table, err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ApplyRetrievalEffects bumps access_count and last_accessed_at, and on
// rehearsal raises importance_score and rehearsal_count, using an
// optimistic-retry update so concurrent retrievals of the same item don't
// lose an increment. It retries once against the freshly-observed count,
// then falls back to an unconditional increment rather than surface a
// conflict to the caller — access bookkeeping is best-effort, not a
// correctness-critical write.
func (s *SQLiteStore) ApplyRetrievalEffects(ctx context.Context, kind model.Kind, id string, now time.Time, rehearse bool, newImportance float64) error {
	spec, ok := kindSpecs[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}
	nowStr := now.UTC().Format(time.RFC3339Nano)

	for attempt := 0; attempt < 2; attempt++ {
		var observed int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT access_count FROM %s WHERE id = ?", spec.table), id).Scan(&observed); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
			}
			return fmt.Errorf("%w: read access_count: %v", ErrBackendUnavailable, err)
		}

		var stmt string
		var args []any
		if rehearse {
			stmt = fmt.Sprintf(
				`UPDATE %s SET access_count = ?, last_accessed_at = ?, rehearsal_count = rehearsal_count + 1,
				 importance_score = ?, last_modified_at = ?, last_modified_op = 'rehearsed'
				 WHERE id = ? AND access_count = ?`, spec.table)
			args = []any{observed + 1, nowStr, newImportance, nowStr, id, observed}
		} else {
			stmt = fmt.Sprintf(`UPDATE %s SET access_count = ?, last_accessed_at = ? WHERE id = ? AND access_count = ?`, spec.table)
			args = []any{observed + 1, nowStr, id, observed}
		}

		res, err := s.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("%w: apply retrieval effects: %v", ErrBackendUnavailable, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}

	// Retry exhausted: fall back to an unconditional increment so the access
	// is still recorded, losing at most one counter tick to the race.
	stmt := fmt.Sprintf(`UPDATE %s SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`, spec.table)
	if _, err := s.db.ExecContext(ctx, stmt, nowStr, id); err != nil {
		return fmt.Errorf("%w: fallback increment: %v", ErrBackendUnavailable, err)
	}
	s.log.Warn("access_count conflict retry exhausted, applied unconditional increment",
		zap.String("kind", string(kind)), zap.String("id", id))
	return nil
}

// ScanTenant returns up to batchSize items for (kind, tenant) ordered by
// (created_at ASC, id ASC), starting strictly after the given cursor. The
// decay task drives this to walk the table oldest-first without an OFFSET,
// which would skip unvisited rows once earlier batches delete theirs.
func (s *SQLiteStore) ScanTenant(ctx context.Context, kind model.Kind, tenant model.Tenant, afterID string, afterCreatedAt time.Time, batchSize int) ([]model.Item, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}
	columns := append(append([]string{}, baseColumns...), spec.contentColumns...)
	whereClause, whereArgs := tenantWhere(tenant)
	stmt := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s AND (created_at > ? OR (created_at = ? AND id > ?))
		 ORDER BY created_at ASC, id ASC LIMIT ?`,
		strings.Join(columns, ", "), spec.table, whereClause)

	cursorStr := afterCreatedAt.UTC().Format(time.RFC3339Nano)
	args := append(whereArgs, cursorStr, cursorStr, afterID, batchSize)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrBackendUnavailable, spec.table, err)
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		item, err := scanItem(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.table, err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, kind model.Kind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	spec, ok := kindSpecs[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrBackendUnavailable, err)
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", spec.table, placeholders)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: delete batch from %s: %v", ErrBackendUnavailable, spec.table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete batch: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) CountItems(ctx context.Context, kind model.Kind, tenant model.Tenant) (int64, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}
	whereClause, whereArgs := tenantWhere(tenant)
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", spec.table, whereClause)
	var n int64
	if err := s.db.QueryRowContext(ctx, stmt, whereArgs...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", ErrBackendUnavailable, spec.table, err)
	}
	return n, nil
}

func (s *SQLiteStore) Distribution(ctx context.Context, tenant model.Tenant) (map[model.Kind]int64, error) {
	out := make(map[model.Kind]int64, len(model.AllKinds))
	for _, kind := range model.AllKinds {
		n, err := s.CountItems(ctx, kind, tenant)
		if err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, nil
}

func (s *SQLiteStore) scanScored(kind model.Kind, rows *sql.Rows) ([]model.Item, map[string]float64, error) {
	spec := kindSpecs[kind]
	var items []model.Item
	scores := make(map[string]float64)
	for rows.Next() {
		dest := make([]any, 0, len(baseColumns)+len(spec.contentColumns)+1)
		var rb rawBase
		var contentDest []any
		switch kind {
		case model.KindChatMessage:
			var sessionID, role, content string
			var emb []byte
			contentDest = []any{&sessionID, &role, &content, &emb}
			dest = scanDestFor(&rb, contentDest)
			var score float64
			dest = append(dest, &score)
			if err := rows.Scan(dest...); err != nil {
				return nil, nil, err
			}
			base, err := rb.toBase()
			if err != nil {
				return nil, nil, err
			}
			item := &model.ChatMessage{Base: base, SessionID: sessionID, Role: role, Content: content, ContentEmbedding: decodeVector(emb)}
			items = append(items, item)
			scores[item.ID] = score
		case model.KindEpisodic:
			var actor, eventType, summary, details string
			var treePath sql.NullString
			var sEmb, dEmb []byte
			contentDest = []any{&actor, &eventType, &summary, &details, &treePath, &sEmb, &dEmb}
			dest = scanDestFor(&rb, contentDest)
			var score float64
			dest = append(dest, &score)
			if err := rows.Scan(dest...); err != nil {
				return nil, nil, err
			}
			base, err := rb.toBase()
			if err != nil {
				return nil, nil, err
			}
			item := &model.EpisodicEvent{Base: base, Actor: actor, EventType: eventType, Summary: summary, Details: details,
				TreePath: treePath.String, SummaryEmbedding: decodeVector(sEmb), DetailsEmbedding: decodeVector(dEmb)}
			items = append(items, item)
			scores[item.ID] = score
		case model.KindSemantic:
			var name, summary, details string
			var source, treePath sql.NullString
			var sEmb, dEmb []byte
			contentDest = []any{&name, &summary, &details, &source, &treePath, &sEmb, &dEmb}
			dest = scanDestFor(&rb, contentDest)
			var score float64
			dest = append(dest, &score)
			if err := rows.Scan(dest...); err != nil {
				return nil, nil, err
			}
			base, err := rb.toBase()
			if err != nil {
				return nil, nil, err
			}
			item := &model.SemanticItem{Base: base, Name: name, Summary: summary, Details: details,
				Source: source.String, TreePath: treePath.String, SummaryEmbedding: decodeVector(sEmb), DetailsEmbedding: decodeVector(dEmb)}
			items = append(items, item)
			scores[item.ID] = score
		case model.KindProcedural:
			var skillName, description, stepsJSON string
			var emb []byte
			contentDest = []any{&skillName, &description, &stepsJSON, &emb}
			dest = scanDestFor(&rb, contentDest)
			var score float64
			dest = append(dest, &score)
			if err := rows.Scan(dest...); err != nil {
				return nil, nil, err
			}
			base, err := rb.toBase()
			if err != nil {
				return nil, nil, err
			}
			var steps []string
			if stepsJSON != "" {
				if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
					return nil, nil, err
				}
			}
			item := &model.ProceduralItem{Base: base, SkillName: skillName, Description: description, Steps: steps, DescriptionEmbedding: decodeVector(emb)}
			items = append(items, item)
			scores[item.ID] = score
		case model.KindResource:
			var name, description, resourceType, location string
			var emb []byte
			contentDest = []any{&name, &description, &resourceType, &location, &emb}
			dest = scanDestFor(&rb, contentDest)
			var score float64
			dest = append(dest, &score)
			if err := rows.Scan(dest...); err != nil {
				return nil, nil, err
			}
			base, err := rb.toBase()
			if err != nil {
				return nil, nil, err
			}
			item := &model.ResourceItem{Base: base, ResourceName: name, Description: description, ResourceType: resourceType,
				Location: location, DescriptionEmbedding: decodeVector(emb)}
			items = append(items, item)
			scores[item.ID] = score
		case model.KindVault:
			var title, content, vaultType string
			var emb []byte
			contentDest = []any{&title, &content, &vaultType, &emb}
			dest = scanDestFor(&rb, contentDest)
			var score float64
			dest = append(dest, &score)
			if err := rows.Scan(dest...); err != nil {
				return nil, nil, err
			}
			base, err := rb.toBase()
			if err != nil {
				return nil, nil, err
			}
			item := &model.KnowledgeVaultItem{Base: base, Title: title, Content: content, VaultType: vaultType, ContentEmbedding: decodeVector(emb)}
			items = append(items, item)
			scores[item.ID] = score
		default:
			return nil, nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
		}
	}
	return items, scores, rows.Err()
}

func scanDestFor(rb *rawBase, contentDest []any) []any {
	dest := []any{&rb.id, &rb.organizationID, &rb.userID, &rb.createdAt, &rb.importanceScore,
		&rb.accessCount, &rb.lastAccessedAt, &rb.rehearsalCount, &rb.metadata,
		&rb.lastModifiedAt, &rb.lastModifiedOp}
	return append(dest, contentDest...)
}

func prefixed(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}

func prefixColumns(whereClause, alias string) string {
	// tenantWhere only ever references organization_id and user_id.
	whereClause = strings.ReplaceAll(whereClause, "organization_id", alias+".organization_id")
	whereClause = strings.ReplaceAll(whereClause, "user_id", alias+".user_id")
	return whereClause
}
