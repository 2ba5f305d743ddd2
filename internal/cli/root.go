// Package cli implements the tempomem command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tempomem/tempomem/internal/clock"
	"github.com/tempomem/tempomem/internal/config"
	"github.com/tempomem/tempomem/internal/model"
	"github.com/tempomem/tempomem/internal/store"
)

var (
	dbPath  string
	orgID   string
	userID  string
	verbose bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "tempomem",
	Short: "Temporal memory store for AI agents",
	Long:  "tempomem scores, retrieves, and forgets agent memory over time. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $TEMPOMEM_DB or ~/.tempomem/tempomem.db)")
	RootCmd.PersistentFlags().StringVar(&orgID, "org", "", "Organization ID (required for most commands)")
	RootCmd.PersistentFlags().StringVar(&userID, "user", "", "User ID (optional tenant scope)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("TEMPOMEM_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return home + "/.tempomem/tempomem.db"
}

func tenant() (model.Tenant, error) {
	if orgID == "" {
		return model.Tenant{}, fmt.Errorf("--org is required")
	}
	t := model.Tenant{OrganizationID: orgID}
	if userID != "" {
		t.UserID = &userID
	}
	return t, nil
}

func newLogger() *zap.Logger {
	if verbose {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

func newClock() clock.Clock {
	return clock.Real{}
}

func loadConfig() (config.Config, error) {
	return config.Load()
}

func openStore(ctx context.Context, log *zap.Logger) (*store.SQLiteStore, error) {
	return store.Open(ctx, "file:"+getDBPath()+"?_pragma=busy_timeout(5000)", log)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
