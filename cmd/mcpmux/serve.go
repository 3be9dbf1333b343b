package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcpmux/internal/catalog"
	"github.com/giantswarm/mcpmux/internal/config"
	"github.com/giantswarm/mcpmux/internal/configwatch"
	"github.com/giantswarm/mcpmux/internal/logging"
	"github.com/giantswarm/mcpmux/internal/manager"
	"github.com/giantswarm/mcpmux/internal/proxyserver"
	"github.com/giantswarm/mcpmux/internal/router"
)

var (
	serveHost  string
	servePort  int
	serveHTTP  bool
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve [config-path]",
	Short: "Start the proxy and serve the invoke/read MCP surface",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "host to bind when --http is set")
	serveCmd.Flags().IntVar(&servePort, "port", 8686, "port to bind when --http is set")
	serveCmd.Flags().BoolVar(&serveHTTP, "http", false, "serve over streamable-HTTP instead of stdio")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "reload automatically when the config file changes")
	rootCmd.AddCommand(serveCmd)

	// serve is also the root command's default action.
	rootCmd.Args = cobra.MaximumNArgs(1)
	rootCmd.RunE = runServe
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
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

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := mgr.Initialize(ctx); err != nil {
		return &exitCodeError{code: ExitCodeError, err: fmt.Errorf("initialize backends: %w", err)}
	}
	defer mgr.Close()

	r := router.New(mgr)
	proxy := proxyserver.New(mgr, r)

	if serveWatch {
		watcher := configwatch.New(configPath, func() {
			logging.Info("CLI", "config change detected, reloading")
			if err := mgr.Reload(ctx); err != nil {
				logging.Error("CLI", err, "reload failed")
				return
			}
			proxy.Refresh()
		})
		if err := watcher.Start(); err != nil {
			logging.Warn("CLI", "config watch disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveHTTP {
		return serveStreamableHTTP(sigCtx, proxy.MCPServer())
	}
	return serveStdio(sigCtx, proxy.MCPServer())
}

func serveStdio(ctx context.Context, srv *mcpserver.MCPServer) error {
	stdioServer := mcpserver.NewStdioServer(srv)
	errCh := make(chan error, 1)
	go func() {
		errCh <- stdioServer.Listen(ctx, os.Stdin, os.Stdout)
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return &exitCodeError{code: ExitCodeError, err: err}
		}
		return nil
	}
}

func serveStreamableHTTP(ctx context.Context, srv *mcpserver.MCPServer) error {
	httpServer := mcpserver.NewStreamableHTTPServer(srv)
	addr := fmt.Sprintf("%s:%d", serveHost, servePort)
	server := &http.Server{Addr: addr, Handler: httpServer}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("CLI", "serving streamable-HTTP on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if err != nil {
			return &exitCodeError{code: ExitCodeError, err: err}
		}
		return nil
	}
}
