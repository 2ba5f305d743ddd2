package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tempomem/tempomem/internal/model"
)

// rawBase holds the common columns read off any of the six tables, in the
// fixed scan order id, organization_id, user_id, created_at,
// importance_score, access_count, last_accessed_at, rehearsal_count,
// metadata, last_modified_at, last_modified_op.
type rawBase struct {
	id              string
	organizationID  string
	userID          sql.NullString
	createdAt       string
	importanceScore float64
	accessCount     int64
	lastAccessedAt  sql.NullString
	rehearsalCount  int64
	metadata        sql.NullString
	lastModifiedAt  string
	lastModifiedOp  string
}

func (r rawBase) toBase() (model.Base, error) {
	created, err := time.Parse(time.RFC3339Nano, r.createdAt)
	if err != nil {
		return model.Base{}, fmt.Errorf("parse created_at: %w", err)
	}
	lastMod, err := time.Parse(time.RFC3339Nano, r.lastModifiedAt)
	if err != nil {
		return model.Base{}, fmt.Errorf("parse last_modified_at: %w", err)
	}
	b := model.Base{
		ID:              r.id,
		OrganizationID:  r.organizationID,
		CreatedAt:       created,
		ImportanceScore: r.importanceScore,
		AccessCount:     r.accessCount,
		RehearsalCount:  r.rehearsalCount,
		LastModified:    model.LastModified{Timestamp: lastMod, Operation: r.lastModifiedOp},
	}
	if r.userID.Valid {
		uid := r.userID.String
		b.UserID = &uid
	}
	if r.lastAccessedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, r.lastAccessedAt.String)
		if err != nil {
			return model.Base{}, fmt.Errorf("parse last_accessed_at: %w", err)
		}
		b.LastAccessedAt = &t
	}
	if r.metadata.Valid && r.metadata.String != "" {
		m := map[string]any{}
		if err := json.Unmarshal([]byte(r.metadata.String), &m); err != nil {
			return model.Base{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
		b.Metadata = m
	}
	return b, nil
}

func encodeMetadata(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullableUserID(u *string) sql.NullString {
	if u == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *u, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// baseColumns is the fixed common-column list shared by every table, in
// scan/insert order.
var baseColumns = []string{
	"id", "organization_id", "user_id", "created_at", "importance_score",
	"access_count", "last_accessed_at", "rehearsal_count", "metadata",
	"last_modified_at", "last_modified_op",
}

func scanItem(kind model.Kind, rows *sql.Rows) (model.Item, error) {
	switch kind {
	case model.KindChatMessage:
		return scanChatMessage(rows)
	case model.KindEpisodic:
		return scanEpisodicEvent(rows)
	case model.KindSemantic:
		return scanSemanticItem(rows)
	case model.KindProcedural:
		return scanProceduralItem(rows)
	case model.KindResource:
		return scanResourceItem(rows)
	case model.KindVault:
		return scanKnowledgeVaultItem(rows)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}
}

func scanChatMessage(rows *sql.Rows) (*model.ChatMessage, error) {
	var rb rawBase
	var sessionID, role, content string
	var embedding []byte
	if err := rows.Scan(&rb.id, &rb.organizationID, &rb.userID, &rb.createdAt, &rb.importanceScore,
		&rb.accessCount, &rb.lastAccessedAt, &rb.rehearsalCount, &rb.metadata,
		&rb.lastModifiedAt, &rb.lastModifiedOp,
		&sessionID, &role, &content, &embedding); err != nil {
		return nil, err
	}
	base, err := rb.toBase()
	if err != nil {
		return nil, err
	}
	return &model.ChatMessage{Base: base, SessionID: sessionID, Role: role, Content: content,
		ContentEmbedding: decodeVector(embedding)}, nil
}

func scanEpisodicEvent(rows *sql.Rows) (*model.EpisodicEvent, error) {
	var rb rawBase
	var actor, eventType, summary, details string
	var treePath sql.NullString
	var summaryEmb, detailsEmb []byte
	if err := rows.Scan(&rb.id, &rb.organizationID, &rb.userID, &rb.createdAt, &rb.importanceScore,
		&rb.accessCount, &rb.lastAccessedAt, &rb.rehearsalCount, &rb.metadata,
		&rb.lastModifiedAt, &rb.lastModifiedOp,
		&actor, &eventType, &summary, &details, &treePath, &summaryEmb, &detailsEmb); err != nil {
		return nil, err
	}
	base, err := rb.toBase()
	if err != nil {
		return nil, err
	}
	return &model.EpisodicEvent{Base: base, Actor: actor, EventType: eventType, Summary: summary,
		Details: details, TreePath: treePath.String,
		SummaryEmbedding: decodeVector(summaryEmb), DetailsEmbedding: decodeVector(detailsEmb)}, nil
}

func scanSemanticItem(rows *sql.Rows) (*model.SemanticItem, error) {
	var rb rawBase
	var name, summary, details string
	var source, treePath sql.NullString
	var summaryEmb, detailsEmb []byte
	if err := rows.Scan(&rb.id, &rb.organizationID, &rb.userID, &rb.createdAt, &rb.importanceScore,
		&rb.accessCount, &rb.lastAccessedAt, &rb.rehearsalCount, &rb.metadata,
		&rb.lastModifiedAt, &rb.lastModifiedOp,
		&name, &summary, &details, &source, &treePath, &summaryEmb, &detailsEmb); err != nil {
		return nil, err
	}
	base, err := rb.toBase()
	if err != nil {
		return nil, err
	}
	return &model.SemanticItem{Base: base, Name: name, Summary: summary, Details: details,
		Source: source.String, TreePath: treePath.String,
		SummaryEmbedding: decodeVector(summaryEmb), DetailsEmbedding: decodeVector(detailsEmb)}, nil
}

func scanProceduralItem(rows *sql.Rows) (*model.ProceduralItem, error) {
	var rb rawBase
	var skillName, description, stepsJSON string
	var embedding []byte
	if err := rows.Scan(&rb.id, &rb.organizationID, &rb.userID, &rb.createdAt, &rb.importanceScore,
		&rb.accessCount, &rb.lastAccessedAt, &rb.rehearsalCount, &rb.metadata,
		&rb.lastModifiedAt, &rb.lastModifiedOp,
		&skillName, &description, &stepsJSON, &embedding); err != nil {
		return nil, err
	}
	base, err := rb.toBase()
	if err != nil {
		return nil, err
	}
	var steps []string
	if stepsJSON != "" {
		if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	return &model.ProceduralItem{Base: base, SkillName: skillName, Description: description,
		Steps: steps, DescriptionEmbedding: decodeVector(embedding)}, nil
}

func scanResourceItem(rows *sql.Rows) (*model.ResourceItem, error) {
	var rb rawBase
	var name, description, resourceType, location string
	var embedding []byte
	if err := rows.Scan(&rb.id, &rb.organizationID, &rb.userID, &rb.createdAt, &rb.importanceScore,
		&rb.accessCount, &rb.lastAccessedAt, &rb.rehearsalCount, &rb.metadata,
		&rb.lastModifiedAt, &rb.lastModifiedOp,
		&name, &description, &resourceType, &location, &embedding); err != nil {
		return nil, err
	}
	base, err := rb.toBase()
	if err != nil {
		return nil, err
	}
	return &model.ResourceItem{Base: base, ResourceName: name, Description: description,
		ResourceType: resourceType, Location: location, DescriptionEmbedding: decodeVector(embedding)}, nil
}

func scanKnowledgeVaultItem(rows *sql.Rows) (*model.KnowledgeVaultItem, error) {
	var rb rawBase
	var title, content, vaultType string
	var embedding []byte
	if err := rows.Scan(&rb.id, &rb.organizationID, &rb.userID, &rb.createdAt, &rb.importanceScore,
		&rb.accessCount, &rb.lastAccessedAt, &rb.rehearsalCount, &rb.metadata,
		&rb.lastModifiedAt, &rb.lastModifiedOp,
		&title, &content, &vaultType, &embedding); err != nil {
		return nil, err
	}
	base, err := rb.toBase()
	if err != nil {
		return nil, err
	}
	return &model.KnowledgeVaultItem{Base: base, Title: title, Content: content, VaultType: vaultType,
		ContentEmbedding: decodeVector(embedding)}, nil
}

// insertValues returns the kind-specific column values for a Create call, in
// the order kindSpecs[kind].contentColumns lists them.
func insertValues(item model.Item) ([]any, error) {
	switch v := item.(type) {
	case *model.ChatMessage:
		return []any{v.SessionID, v.Role, v.Content, encodeVector(v.ContentEmbedding)}, nil
	case *model.EpisodicEvent:
		return []any{v.Actor, v.EventType, v.Summary, v.Details, nullOrString(v.TreePath),
			encodeVector(v.SummaryEmbedding), encodeVector(v.DetailsEmbedding)}, nil
	case *model.SemanticItem:
		return []any{v.Name, v.Summary, v.Details, nullOrString(v.Source), nullOrString(v.TreePath),
			encodeVector(v.SummaryEmbedding), encodeVector(v.DetailsEmbedding)}, nil
	case *model.ProceduralItem:
		steps, err := json.Marshal(v.Steps)
		if err != nil {
			return nil, err
		}
		return []any{v.SkillName, v.Description, string(steps), encodeVector(v.DescriptionEmbedding)}, nil
	case *model.ResourceItem:
		return []any{v.ResourceName, v.Description, v.ResourceType, v.Location,
			encodeVector(v.DescriptionEmbedding)}, nil
	case *model.KnowledgeVaultItem:
		return []any{v.Title, v.Content, v.VaultType, encodeVector(v.ContentEmbedding)}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported item type %T", ErrInvalidQuery, item)
	}
}

func nullOrString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
