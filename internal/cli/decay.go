package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tempomem/tempomem/internal/decay"
)

func init() {
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Run a forgetting cycle",
		Run:   runDecay,
	}

	cmd.Flags().Bool("dry-run", false, "Score and report without deleting")
	cmd.Flags().Int("batch-size", 0, "Rows scanned per batch (default 500)")

	RootCmd.AddCommand(cmd)
}

func runDecay(cmd *cobra.Command, args []string) {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	t, err := tenant()
	if err != nil {
		exitErr("decay", err)
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

	runner := decay.New(s, cfg, newClock(), log)
	report, err := runner.RunCycle(ctx, t, dryRun, batchSize)
	if err != nil {
		exitErr("decay", err)
	}

	b, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(b))
}
