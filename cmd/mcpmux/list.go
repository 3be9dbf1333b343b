package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/giantswarm/mcpmux/internal/catalog"
	"github.com/giantswarm/mcpmux/internal/config"
	"github.com/giantswarm/mcpmux/internal/manager"
)

var listCmd = &cobra.Command{
	Use:   "list [config-path]",
	Short: "Connect briefly and print the resolved backend/tool/health state",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	configPath := "mcpmux.json"
	if len(args) == 1 {
		configPath = args[0]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitCodeError{code: ExitCodeError, err: fmt.Errorf("load config: %w", err)}
	}
	store := config.NewStore(configPath, cfg)
	cache := catalog.NewCache()
	mgr := manager.New(store, cache)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := mgr.Initialize(ctx); err != nil {
		return &exitCodeError{code: ExitCodeError, err: err}
	}
	defer mgr.Close()

	printBackendsTable(cmd, mgr, cache)
	return nil
}

func printBackendsTable(cmd *cobra.Command, mgr *manager.Manager, cache *catalog.Cache) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"BACKEND", "TOOLS", "RESOURCES", "HEALTH"})

	for _, backend := range cache.Backends() {
		entry, _ := cache.Entry(backend)
		health := "unknown"
		if record, ok := mgr.HealthRecord(backend); ok {
			health = string(record.Status)
		}
		t.AppendRow(table.Row{backend, len(entry.Tools), len(entry.Resources), health})
	}
	t.Render()
}
