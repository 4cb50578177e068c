package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/vidprev/internal/dom"
	"github.com/saltyorg/vidprev/internal/overlay"
	"github.com/saltyorg/vidprev/internal/player"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var (
		duration time.Duration
		width    int
		binary   string
	)

	cmd := &cobra.Command{
		Use:   "preview ITEM_ID",
		Short: "Play a silent preview of an item in mpv",
		Long:  "Preview resolves the item and plays it in a borderless mpv window, falling back to the transcoded stream once if direct play fails. It stops after --for, when the window is closed, or on Ctrl-C.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, _, err := ctx.resolver(cmd)
			if err != nil {
				return err
			}

			mpv := player.New("vidprev: " + args[0])
			if binary != "" {
				mpv.Binary = binary
			}
			if !mpv.Available() {
				return fmt.Errorf("mpv not found (looked for %q)", binary)
			}

			surface := overlay.New(mpv, mpv)
			if width > 0 {
				surface.Position(dom.Rect{Width: float64(width), Height: float64(width) * 9 / 16})
			}
			defer surface.Hide()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cand, err := resolver.Negotiate(runCtx, args[0], surface)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			log.Info().Str("media_id", cand.MediaID).Str("mode", cand.Mode.String()).Msg("Preview playing")
			fmt.Fprintf(cmd.OutOrStdout(), "Playing %s (%s)\n", cand.MediaID, cand.Mode)

			var timeout <-chan time.Time
			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				timeout = timer.C
			}

			select {
			case <-runCtx.Done():
			case <-timeout:
			case <-mpv.Exited():
				log.Debug().Msg("mpv window closed")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop the preview after this long (0 plays until interrupted)")
	cmd.Flags().IntVar(&width, "width", 480, "Window width in pixels; height follows at 16:9 (0 lets mpv decide)")
	cmd.Flags().StringVar(&binary, "mpv", player.DefaultBinary, "mpv executable")
	return cmd
}
