package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcdev12/respawn/go/internal/inference"
	"github.com/mcdev12/respawn/go/internal/session"
)

var (
	spawnMode  bool
	sortFlag   string
	searchFlag string
	exportFlag bool
	confirmed  bool
)

var addCmd = &cobra.Command{
	Use:   "add <report>",
	Short: "Record a kill report such as \"1030 東飛 過\"",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := joinRoom(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		mode := inference.ModeKill
		if spawnMode {
			mode = inference.ModeSpawn
		}
		input := strings.Join(args, " ")
		t, err := sess.Submit(ctx, input, mode)
		if err != nil {
			return err
		}
		if t == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "ignored: %q names no known boss\n", input)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s spawns at %s in room %s\n",
			stack.Catalog.DisplayName(t.EntityName),
			inference.FormatClock(t.NextSpawn, stack.Location),
			sess.Room())
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the room's timers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		room := resolveRoom(ctx)
		ts, err := stack.Store.List(ctx, room)
		if err != nil {
			return err
		}

		board := session.Board(stack.Catalog, ts, searchFlag, session.ParseSortKey(sortFlag))
		out := cmd.OutOrStdout()
		if exportFlag {
			fmt.Fprintln(out, session.Export(stack.Catalog, board, stack.Location))
			return nil
		}
		fmt.Fprintf(out, "room %s\n", room)
		printBoard(out, stack.Catalog, board, stack.Location, time.Now())
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the room with the last snapshot cached on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if stack.Reconciler == nil {
			return fmt.Errorf("no local cache configured")
		}
		room := resolveRoom(ctx)

		cached, err := stack.Reconciler.LastGood(ctx, room)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintf(cmd.OutOrStdout(), "room %s has %d cached timers; re-run with --yes to restore them\n", room, len(cached))
			return nil
		}

		ts, err := stack.Reconciler.Restore(ctx, room)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %d timers into room %s\n", len(ts), room)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset every boss to spawn at this week's maintenance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if !confirmed {
			at := session.MaintenanceTime(time.Now().In(stack.Location))
			fmt.Fprintf(cmd.OutOrStdout(), "this replaces the room with %d timers spawning at %s; re-run with --yes\n",
				len(stack.Catalog.Entities()), at.Format("Mon 15:04"))
			return nil
		}

		sess, err := joinRoom(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		ts, err := sess.MaintenanceReset(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %d timers in room %s\n", len(ts), sess.Room())
		return nil
	},
}

var fixedCmd = &cobra.Command{
	Use:   "fixed",
	Short: "Show the next appearance of fixed-schedule bosses",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, f := range stack.Catalog.FixedSchedule(time.Now().In(stack.Location)) {
			switch {
			case !f.Active:
				fmt.Fprintf(out, "%s\tnot today\n", f.Name)
			case f.Today:
				fmt.Fprintf(out, "%s\t%s\n", f.Name, f.At.Format("15:04"))
			default:
				fmt.Fprintf(out, "%s\ttomorrow %s\n", f.Name, f.At.Format("15:04"))
			}
		}
		return nil
	},
}

func init() {
	addCmd.Flags().BoolVar(&spawnMode, "spawn", false, "the reported time is the next spawn, not the kill")
	listCmd.Flags().StringVar(&sortFlag, "sort", "nextSpawn", "sort by nextSpawn, name or killTime")
	listCmd.Flags().StringVarP(&searchFlag, "search", "s", "", "filter by name or alias")
	listCmd.Flags().BoolVar(&exportFlag, "export", false, "print the plain-text export")
	restoreCmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the restore")
	resetCmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the reset")

	rootCmd.AddCommand(addCmd, listCmd, restoreCmd, resetCmd, fixedCmd, watchCmd)
}
