package store

import "github.com/tempomem/tempomem/internal/model"

// kindSpec describes the physical shape of one kind's table: its name, the
// content columns that aren't part of model.Base, and the lexical (FTS5) and
// embedding columns among them.
type kindSpec struct {
	table           string
	fts             string
	contentColumns  []string // all kind-specific columns, in a stable order
	lexicalColumns  []string
	embeddingColumns []string
}

var kindSpecs = map[model.Kind]kindSpec{
	model.KindChatMessage: {
		table:            "chat_messages",
		fts:              "chat_messages_fts",
		contentColumns:   []string{"session_id", "role", "content", "content_embedding"},
		lexicalColumns:   []string{"content"},
		embeddingColumns: []string{"content_embedding"},
	},
	model.KindEpisodic: {
		table:            "episodic_events",
		fts:              "episodic_events_fts",
		contentColumns:   []string{"actor", "event_type", "summary", "details", "tree_path", "summary_embedding", "details_embedding"},
		lexicalColumns:   []string{"summary", "details"},
		embeddingColumns: []string{"summary_embedding", "details_embedding"},
	},
	model.KindSemantic: {
		table:            "semantic_items",
		fts:              "semantic_items_fts",
		contentColumns:   []string{"name", "summary", "details", "source", "tree_path", "summary_embedding", "details_embedding"},
		lexicalColumns:   []string{"summary", "details"},
		embeddingColumns: []string{"summary_embedding", "details_embedding"},
	},
	model.KindProcedural: {
		table:            "procedural_items",
		fts:              "procedural_items_fts",
		contentColumns:   []string{"skill_name", "description", "steps", "description_embedding"},
		lexicalColumns:   []string{"description"},
		embeddingColumns: []string{"description_embedding"},
	},
	model.KindResource: {
		table:            "resource_items",
		fts:              "resource_items_fts",
		contentColumns:   []string{"resource_name", "description", "resource_type", "location", "description_embedding"},
		lexicalColumns:   []string{"description"},
		embeddingColumns: []string{"description_embedding"},
	},
	model.KindVault: {
		table:            "knowledge_vault_items",
		fts:              "knowledge_vault_items_fts",
		contentColumns:   []string{"title", "content", "vault_type", "content_embedding"},
		lexicalColumns:   []string{"content"},
		embeddingColumns: []string{"content_embedding"},
	},
}

// kindsOrAll returns ks unchanged if non-empty, else every known kind.
func kindsOrAll(ks []model.Kind) []model.Kind {
	if len(ks) > 0 {
		return ks
	}
	return model.AllKinds
}
