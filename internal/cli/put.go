package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tempomem/tempomem/internal/model"
	"github.com/tempomem/tempomem/internal/writeapi"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory item",
		Long:  "Store a memory item. Content can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().String("kind", "semantic_item", "Kind: chat_message, episodic_event, semantic_item, procedural_item, resource_item, knowledge_vault_item")
	cmd.Flags().Float64("importance", 0.5, "Initial importance score (0-1)")
	cmd.Flags().String("meta", "", "JSON metadata object")
	cmd.Flags().String("field", "", "Extra kind-specific fields as a JSON object, e.g. '{\"session_id\":\"s1\",\"role\":\"user\"}'")

	RootCmd.AddCommand(cmd)
}

func readContent(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", nil
}

func runPut(cmd *cobra.Command, args []string) {
	kindFlag, _ := cmd.Flags().GetString("kind")
	importance, _ := cmd.Flags().GetFloat64("importance")
	metaStr, _ := cmd.Flags().GetString("meta")
	fieldStr, _ := cmd.Flags().GetString("field")

	content, err := readContent(args)
	if err != nil {
		exitErr("read content", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	kind := model.Kind(kindFlag)
	if !kind.Valid() {
		exitErr("put", fmt.Errorf("unknown kind %q", kindFlag))
	}

	var meta map[string]any
	if metaStr != "" {
		if err := json.Unmarshal([]byte(metaStr), &meta); err != nil {
			exitErr("parse --meta", err)
		}
	}
	var fields map[string]string
	if fieldStr != "" {
		if err := json.Unmarshal([]byte(fieldStr), &fields); err != nil {
			exitErr("parse --field", err)
		}
	}

	t, err := tenant()
	if err != nil {
		exitErr("put", err)
	}

	item, err := buildItem(kind, content, fields)
	if err != nil {
		exitErr("put", err)
	}

	ctx := context.Background()
	log := newLogger()
	defer log.Sync()
	s, err := openStore(ctx, log)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	api := writeapi.New(s, cfg, newClock())
	created, err := api.Create(ctx, writeapi.CreateInput{
		OrganizationID:  t.OrganizationID,
		UserID:          t.UserID,
		ImportanceScore: &importance,
		Metadata:        meta,
		Item:            item,
	})
	if err != nil {
		exitErr("put", err)
	}

	b, _ := json.MarshalIndent(created, "", "  ")
	fmt.Println(string(b))
}

// buildItem assembles an empty, kind-specific model.Item with content set
// from the positional/stdin text plus any --field overrides. writeapi.Create
// fills in the Base fields (ID, timestamps, tenant) before persisting.
func buildItem(kind model.Kind, content string, fields map[string]string) (model.Item, error) {
	switch kind {
	case model.KindChatMessage:
		role := fields["role"]
		if role == "" {
			role = "user"
		}
		return &model.ChatMessage{SessionID: fields["session_id"], Role: role, Content: content}, nil
	case model.KindEpisodic:
		return &model.EpisodicEvent{Actor: fields["actor"], EventType: fields["event_type"], Summary: content, Details: fields["details"]}, nil
	case model.KindSemantic:
		return &model.SemanticItem{Name: fields["name"], Summary: content, Details: fields["details"], Source: fields["source"]}, nil
	case model.KindProcedural:
		return &model.ProceduralItem{SkillName: fields["skill_name"], Description: content}, nil
	case model.KindResource:
		return &model.ResourceItem{ResourceName: fields["resource_name"], Description: content,
			ResourceType: fields["resource_type"], Location: fields["location"]}, nil
	case model.KindVault:
		return &model.KnowledgeVaultItem{Title: fields["title"], Content: content, VaultType: fields["vault_type"]}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}
