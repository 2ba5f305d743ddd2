package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tempomem/tempomem/internal/model"
	"github.com/tempomem/tempomem/internal/retrieval"
)

func init() {
	cmd := &cobra.Command{
		Use:   "retrieve [text]",
		Short: "Run a scored retrieval query",
		Run:   runRetrieve,
	}

	cmd.Flags().Int("limit", 10, "Maximum items to return")
	cmd.Flags().StringSlice("kind", nil, "Restrict to one or more kinds (default: all)")

	RootCmd.AddCommand(cmd)
}

func runRetrieve(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	kindStrs, _ := cmd.Flags().GetStringSlice("kind")

	var text string
	if len(args) > 0 {
		text = args[0]
	}

	var kinds []model.Kind
	for _, k := range kindStrs {
		kinds = append(kinds, model.Kind(k))
	}

	t, err := tenant()
	if err != nil {
		exitErr("retrieve", err)
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

	engine := retrieval.New(s, cfg, newClock(), log)
	result, err := engine.Retrieve(ctx, model.Query{
		OrganizationID: t.OrganizationID,
		UserID:         t.UserID,
		Kinds:          kinds,
		Text:           text,
		Limit:          limit,
	})
	if err != nil {
		exitErr("retrieve", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}
