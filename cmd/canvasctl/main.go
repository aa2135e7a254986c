// Command canvasctl drives a headless canvas editor against any store
// backend: scripted edits, thumbnails, particle frames and duplicate cleanup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/canvas-studio/engine/pkg/config"
	"github.com/canvas-studio/engine/pkg/logger"
)

type globalFlags struct {
	backend  string
	dbPath   string
	baseURL  string
	ownerID  string
	name     string
	canvasID string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		g   globalFlags
		cfg *config.Config
	)
	root := &cobra.Command{
		Use:           "canvasctl",
		Short:         "Edit, render and maintain stored canvases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load()
			if err != nil {
				return err
			}
			cfg = c
			if _, err := logger.InitWriter(c.LogLevel, "console", os.Stderr); err != nil {
				return err
			}
			if g.name == "" {
				g.name = c.DefaultCanvasName
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) { logger.Sync() },
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.backend, "store", "sqlite", "store backend: memory, sqlite, http or postgres")
	pf.StringVar(&g.dbPath, "db", "canvas.db", "sqlite database file")
	pf.StringVar(&g.baseURL, "url", "http://localhost:8080/api/v1", "canvas API base URL for the http store")
	pf.StringVar(&g.ownerID, "owner", "local", "owner id")
	pf.StringVar(&g.name, "name", "", "canvas name (defaults to DEFAULT_CANVAS_NAME)")
	pf.StringVar(&g.canvasID, "canvas-id", "", "canvas id; takes precedence over owner and name")

	conf := func() *config.Config { return cfg }
	root.AddCommand(
		newRunCmd(&g, conf),
		newThumbnailCmd(&g, conf),
		newParticlesCmd(&g, conf),
		newListCmd(&g, conf),
		newCleanupCmd(&g, conf),
	)
	return root
}

func printf(attr color.Attribute, format string, a ...any) {
	color.New(attr).Printf(format, a...)
}

func fail(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}
