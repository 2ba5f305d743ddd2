package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tempomem/tempomem/internal/model"
	"github.com/tempomem/tempomem/internal/writeapi"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm [kind] [id]",
		Short: "Delete a memory item",
		Args:  cobra.ExactArgs(2),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	kind := model.Kind(args[0])
	id := args[1]
	if !kind.Valid() {
		exitErr("rm", fmt.Errorf("unknown kind %q", args[0]))
	}

	t, err := tenant()
	if err != nil {
		exitErr("rm", err)
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
	if err := api.Delete(ctx, kind, id, t); err != nil {
		exitErr("rm", err)
	}
	fmt.Println("deleted")
}
