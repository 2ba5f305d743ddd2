package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tempomem/tempomem/internal/admin"
	"github.com/tempomem/tempomem/internal/model"
)

var distributionFields = []string{"importance_score", "access_count", "age_days"}

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-kind item counts, forgettable counts, and per-field distributions",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	t, err := tenant()
	if err != nil {
		exitErr("stats", err)
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

	svc := admin.New(s, cfg, newClock())

	counts, err := svc.CountItems(ctx, t)
	if err != nil {
		exitErr("count items", err)
	}
	forgettable, err := svc.ForgettableCount(ctx, t, 0)
	if err != nil {
		exitErr("forgettable count", err)
	}
	dist := make(map[model.Kind]map[string]admin.Histogram, len(model.AllKinds))
	for _, kind := range model.AllKinds {
		dist[kind] = make(map[string]admin.Histogram, len(distributionFields))
		for _, field := range distributionFields {
			h, err := svc.Distribution(ctx, t, kind, field)
			if err != nil {
				exitErr("distribution", err)
			}
			dist[kind][field] = h
		}
	}

	fmt.Printf("%s items across %d kinds\n", humanize.Comma(counts.Total), len(model.AllKinds))

	out := map[string]any{
		"counts":       counts,
		"forgettable":  forgettable,
		"distribution": dist,
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
