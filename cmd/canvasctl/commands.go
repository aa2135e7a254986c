package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/fogleman/gg"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canvas-studio/engine/internal/autosave"
	"github.com/canvas-studio/engine/internal/canvas"
	"github.com/canvas-studio/engine/internal/editor"
	"github.com/canvas-studio/engine/internal/graph"
	"github.com/canvas-studio/engine/internal/particles"
	"github.com/canvas-studio/engine/internal/store"
	"github.com/canvas-studio/engine/internal/thumbnail"
	"github.com/canvas-studio/engine/internal/viewport"
	"github.com/canvas-studio/engine/pkg/config"
	"github.com/canvas-studio/engine/pkg/logger"
)

var screen = viewport.Size{Width: 1280, Height: 800}

func thumbnailOptions(cfg *config.Config) thumbnail.Options {
	o := thumbnail.DefaultOptions()
	o.Width, o.Height = cfg.ThumbnailWidth, cfg.ThumbnailHeight
	return o
}

func newRunCmd(g *globalFlags, conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run <script|->",
		Short: "Open the canvas, apply a script of edits and save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := conf()

			var in io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			steps, err := parseScript(in)
			if err != nil {
				return err
			}

			st, release, err := openStore(ctx, g, cfg)
			if err != nil {
				return err
			}
			defer release()
			cl, closeCleaner, err := cleaner(st, cfg)
			if err != nil {
				return err
			}
			defer closeCleaner()

			s, err := editor.Open(ctx, st, editor.Options{
				CanvasID: g.canvasID,
				OwnerID:  g.ownerID,
				Name:     g.name,
				Size:     screen,
				Save: autosave.Options{
					Debounce:    cfg.SaveDebounce,
					Timeout:     cfg.SaveTimeout,
					LabelTick:   cfg.LabelTick,
					Thumbnailer: thumbnail.Renderer{Options: thumbnailOptions(cfg)},
					Cleaner:     cl,
				},
			})
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.LoadErr(); err != nil {
				color.New(color.FgYellow).Fprintf(os.Stderr, "warning: %v, starting empty\n", err)
			}

			if err := apply(ctx, s, steps); err != nil {
				return err
			}
			if err := finish(ctx, s); err != nil {
				return err
			}

			state := s.SaveState()
			printf(color.FgGreen, "saved %s ", s.Saves.CanvasID())
			fmt.Printf("(%d nodes, %d edges, last saved %s)\n",
				s.Graph.Current().Len(), len(s.Graph.Current().Edges()), state.LastSavedLabel)
			return nil
		},
	}
}

// finish waits for an in-flight save, then writes the final state.
func finish(ctx context.Context, s *editor.Session) error {
	for {
		for s.SaveState().IsSaving {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
		}
		if err := s.Commands.Save(ctx); !errors.Is(err, autosave.ErrQueued) {
			return err
		}
	}
}

// loadSnapshot reads the canvas selected by the global flags.
func loadSnapshot(ctx context.Context, g *globalFlags, cfg *config.Config) (canvas.Snapshot, error) {
	st, release, err := openStore(ctx, g, cfg)
	if err != nil {
		return canvas.Snapshot{}, err
	}
	defer release()
	rec, err := st.Load(ctx, store.Query{CanvasID: g.canvasID, OwnerID: g.ownerID, Name: g.name})
	if err != nil {
		return canvas.Snapshot{}, err
	}
	if rec == nil {
		return canvas.Snapshot{}, fail("canvas %q of %s not found", g.name, g.ownerID)
	}
	return rec.Snapshot, nil
}

func newThumbnailCmd(g *globalFlags, conf func() *config.Config) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "thumbnail",
		Short: "Render the stored canvas to a PNG thumbnail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := loadSnapshot(cmd.Context(), g, conf())
			if err != nil {
				return err
			}
			b, err := thumbnail.PNG(snap, thumbnailOptions(conf()))
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			printf(color.FgGreen, "wrote %s (%d bytes)\n", out, len(b))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "thumbnail.png", "output file")
	return cmd
}

func newParticlesCmd(g *globalFlags, conf func() *config.Config) *cobra.Command {
	var (
		frames int
		prefix string
	)
	cmd := &cobra.Command{
		Use:   "particles",
		Short: "Render particle background frames over the stored canvas",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := conf()
			snap, err := loadSnapshot(cmd.Context(), g, cfg)
			if err != nil {
				return err
			}
			w, h := int(screen.Width), int(screen.Height)
			gr := graph.NewStore().Replace(snap)
			attractors := particles.Attractors(gr, snap.Viewport)
			field := particles.New(screen.Width, screen.Height, particles.DefaultOptions())
			dt := 1 / float64(cfg.ParticleFPS)

			for i := 0; i < frames; i++ {
				field.Update(dt, attractors)
				dc := gg.NewContext(w, h)
				dc.SetRGB(0.06, 0.09, 0.16)
				dc.Clear()
				field.Render(dc)
				path := fmt.Sprintf("%s%03d.png", prefix, i)
				if err := dc.SavePNG(path); err != nil {
					return err
				}
			}
			logger.L().Info("particle frames rendered",
				zap.Int("frames", frames), zap.Float64("mean_energy", field.MeanEnergy()))
			printf(color.FgGreen, "wrote %d frames to %s*.png\n", frames, prefix)
			return nil
		},
	}
	cmd.Flags().IntVar(&frames, "frames", 30, "number of frames")
	cmd.Flags().StringVar(&prefix, "prefix", "frame-", "output file prefix")
	return cmd
}

func newListCmd(g *globalFlags, conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored records for the owner and name, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, release, err := openStore(ctx, g, conf())
			if err != nil {
				return err
			}
			defer release()
			recs, err := st.ListByOwnerAndName(ctx, g.ownerID, g.name)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				printf(color.FgYellow, "no canvases named %q for %s\n", g.name, g.ownerID)
				return nil
			}
			for i, r := range recs {
				attr := color.FgWhite
				if i == 0 {
					attr = color.FgGreen
				}
				printf(attr, "%s", r.ID)
				fmt.Printf("  %s  nodes=%d edges=%d\n",
					r.UpdatedAt.Format(time.RFC3339), len(r.Snapshot.Nodes), len(r.Snapshot.Edges))
			}
			return nil
		},
	}
}

func newCleanupCmd(g *globalFlags, conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete all but the newest record for the owner and name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := conf()
			st, release, err := openStore(ctx, g, cfg)
			if err != nil {
				return err
			}
			defer release()
			cl, closeCleaner, err := cleaner(st, cfg)
			if err != nil {
				return err
			}
			defer closeCleaner()

			n, err := cl.Cleanup(ctx, g.ownerID, g.name)
			if err != nil {
				return err
			}
			if cfg.CleanupMode == "queue" {
				printf(color.FgGreen, "cleanup of %q queued\n", g.name)
				return nil
			}
			printf(color.FgGreen, "deleted %d stale record(s)\n", n)
			return nil
		},
	}
}
