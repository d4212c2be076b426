package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/respawn/go/internal/app"
	"github.com/mcdev12/respawn/go/internal/config"
	"github.com/mcdev12/respawn/go/internal/reconcile"
	"github.com/mcdev12/respawn/go/internal/session"
	"github.com/mcdev12/respawn/go/internal/timers"
)

var (
	roomFlag    string
	backendFlag string
	verbose     bool

	stack *app.App
)

var rootCmd = &cobra.Command{
	Use:   "respawnctl",
	Short: "Shared boss respawn timers",
	Long: `respawnctl reads and edits the respawn timers of a shared room.
Backend, cache and parser are configured through the same environment
variables as the server (RESPAWN_BACKEND, NATS_URL, DB_*, ...).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromEnv()
		if backendFlag != "" {
			cfg.Backend = backendFlag
		}
		level := cfg.Level()
		if !verbose && level < zerolog.WarnLevel {
			level = zerolog.WarnLevel
		}
		zerolog.SetGlobalLevel(level)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		var err error
		stack, err = app.Open(ctx, cfg)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if stack == nil {
			return nil
		}
		return stack.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&roomFlag, "room", "r", "", "room name (defaults to the last joined room)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "override RESPAWN_BACKEND (memory, nats, postgres)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show info logs")
}

// resolveRoom picks the --room flag, then the remembered room, then the default.
func resolveRoom(ctx context.Context) timers.RoomKey {
	if roomFlag != "" {
		return timers.NormalizeRoom(roomFlag)
	}
	if stack.Reconciler != nil {
		if mem, ok := stack.Reconciler.Cache().(reconcile.RoomMemory); ok {
			room, found, err := mem.LastRoom(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to read last room")
			}
			if found {
				return room
			}
		}
	}
	return timers.DefaultRoom
}

// joinRoom opens a session committed to the resolved room.
func joinRoom(ctx context.Context) (*session.Session, error) {
	sess, err := stack.NewSession()
	if err != nil {
		return nil, err
	}
	sess.SetDraft(resolveRoom(ctx).String())
	if err := sess.Commit(ctx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to join room: %w", err)
	}
	return sess, nil
}
