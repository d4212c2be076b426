package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/mcdev12/respawn/go/internal/catalog"
	"github.com/mcdev12/respawn/go/internal/inference"
	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/reconcile"
	"github.com/mcdev12/respawn/go/internal/session"
	"github.com/mcdev12/respawn/go/internal/timers"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a room live and enter reports interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sess, err := joinRoom(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          prompt(sess.Room()),
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		c := newConsole(sess, rl.Stdout())
		sess.OnChange(func(timers.RoomKey) { c.redraw() })

		go func() {
			<-ctx.Done()
			rl.Close()
		}()

		c.printHelp()
		c.redraw()
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil {
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
			rl.SetPrompt(prompt(sess.Room()))
		}
	},
}

func prompt(room timers.RoomKey) string {
	return fmt.Sprintf("%s> ", room)
}

// console turns typed lines into session actions.
type console struct {
	sess *session.Session
	cat  *catalog.Catalog
	loc  *time.Location
	now  func() time.Time

	mu     sync.Mutex
	out    io.Writer
	mode   inference.Mode
	sortBy session.SortKey
	search string
	// pending is a destructive command waiting for "y".
	pending string
}

func newConsole(sess *session.Session, out io.Writer) *console {
	return &console{
		sess:   sess,
		cat:    sess.Catalog(),
		loc:    sess.Location(),
		now:    time.Now,
		out:    out,
		mode:   inference.ModeKill,
		sortBy: session.SortNextSpawn,
	}
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// redraw prints the current status and board.
func (c *console) redraw() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st := c.sess.Status(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	state := "connected"
	if !st.Connected {
		state = "offline"
	}
	fmt.Fprintf(c.out, "\n== room %s (%s, %s mode) ==\n", st.Room, state, c.mode)
	if st.AccessDenied {
		fmt.Fprintf(c.out, "access denied: %s\n", st.AccessDeniedHint)
		fmt.Fprintln(c.out, "showing the local snapshot; /clear after fixing access")
	}
	if st.Recovery == reconcile.RoomRecoverable {
		fmt.Fprintf(c.out, "room is empty but %d timers are cached here; /restore to bring them back\n", st.CachedCount)
	}
	printBoard(c.out, c.cat, session.Board(c.cat, st.Timers, c.search, c.sortBy), c.loc, c.now())
}

func (c *console) printHelp() {
	c.printf(`type a report like "1030 東飛" or "東飛 1030 過"
  /room NAME          switch rooms
  /mode kill|spawn    how typed times are read
  /kill ID            killed just now
  /pass ID            mark passed
  /unknown ID         mark state unknown
  /edit ID HHMM [過]  correct a timer
  /rm ID              remove a timer
  /sort KEY           nextSpawn, name or killTime
  /search TERM        filter the board (empty clears)
  /export             print the plain-text export
  /restore            restore the room from the local snapshot
  /reset              maintenance reset
  /clear              dismiss the access-denied notice
  /quit
`)
}

// handle runs one line and reports whether the console should exit.
func (c *console) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if pending := c.takePending(); pending != "" {
		if strings.EqualFold(line, "y") || strings.EqualFold(line, "yes") {
			c.confirm(ctx, pending)
		} else {
			c.printf("cancelled\n")
		}
		return false
	}

	if !strings.HasPrefix(line, "/") {
		c.submit(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	var err error
	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help", "/?":
		c.printHelp()
	case "/room":
		err = c.switchRoom(ctx, strings.Join(args, " "))
	case "/mode":
		err = c.setMode(args)
	case "/kill":
		err = c.withID(args, func(id string) error {
			_, err := c.sess.Kill(ctx, id)
			return err
		})
	case "/pass":
		err = c.withID(args, func(id string) error { return c.sess.Pass(ctx, id) })
	case "/unknown":
		err = c.withID(args, func(id string) error { return c.sess.MarkUnknown(ctx, id) })
	case "/rm":
		err = c.withID(args, func(id string) error { return c.sess.Remove(ctx, id) })
	case "/edit":
		err = c.edit(ctx, args)
	case "/sort":
		c.mu.Lock()
		c.sortBy = session.ParseSortKey(strings.Join(args, ""))
		c.mu.Unlock()
		c.redraw()
	case "/search":
		c.mu.Lock()
		c.search = strings.Join(args, " ")
		c.mu.Unlock()
		c.redraw()
	case "/export":
		c.printf("%s\n", session.Export(c.cat, session.Board(c.cat, c.sess.Timers(), "", session.SortNextSpawn), c.loc))
	case "/restore":
		c.ask("/restore", "replace the room with the local snapshot? [y/N]")
	case "/reset":
		c.ask("/reset", fmt.Sprintf("reset every boss to %s? [y/N]", session.MaintenanceTime(c.now().In(c.loc)).Format("Mon 15:04")))
	case "/clear":
		c.sess.ClearAccessDenied()
	default:
		err = fmt.Errorf("unknown command %s, try /help", cmd)
	}
	if err != nil {
		c.printf("error: %v\n", err)
	}
	return false
}

func (c *console) submit(ctx context.Context, line string) {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	t, err := c.sess.Submit(ctx, line, mode)
	switch {
	case err != nil:
		c.printf("error: %v\n", err)
	case t == nil:
		c.printf("ignored: no known boss in %q\n", line)
	default:
		c.printf("%s spawns at %s\n", c.cat.DisplayName(t.EntityName), inference.FormatClock(t.NextSpawn, c.loc))
	}
}

func (c *console) switchRoom(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("usage: /room NAME")
	}
	c.sess.SetDraft(name)
	return c.sess.Commit(ctx)
}

func (c *console) setMode(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: /mode kill|spawn")
	}
	mode, err := inference.ParseMode(strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	c.printf("reports are now read as %s times\n", mode)
	return nil
}

func (c *console) edit(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: /edit ID HHMM [過]")
	}
	isPass := len(args) > 2 && (args[2] == "過" || strings.EqualFold(args[2], "pass"))
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()
	return c.withID(args[:1], func(id string) error {
		return c.sess.Edit(ctx, id, args[1], mode, isPass)
	})
}

// withID resolves a displayed id prefix to a full timer id.
func (c *console) withID(args []string, fn func(id string) error) error {
	if len(args) != 1 {
		return errors.New("expected one timer id")
	}
	t, err := findByPrefix(c.sess.Timers(), args[0])
	if err != nil {
		return err
	}
	return fn(t.ID)
}

func findByPrefix(ts []models.Timer, prefix string) (models.Timer, error) {
	var found []models.Timer
	for _, t := range ts {
		if t.ID == prefix {
			return t, nil
		}
		if strings.HasPrefix(t.ID, prefix) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return models.Timer{}, fmt.Errorf("%w: %s", session.ErrUnknownTimer, prefix)
	case 1:
		return found[0], nil
	}
	return models.Timer{}, fmt.Errorf("id %s is ambiguous", prefix)
}

func (c *console) ask(cmd, question string) {
	c.mu.Lock()
	c.pending = cmd
	fmt.Fprintln(c.out, question)
	c.mu.Unlock()
}

func (c *console) takePending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	c.pending = ""
	return p
}

func (c *console) confirm(ctx context.Context, cmd string) {
	var (
		ts  []models.Timer
		err error
	)
	switch cmd {
	case "/restore":
		ts, err = c.sess.RestoreFromCache(ctx)
	case "/reset":
		ts, err = c.sess.MaintenanceReset(ctx)
	}
	if err != nil {
		c.printf("error: %v\n", err)
		return
	}
	c.printf("%s: %d timers\n", strings.TrimPrefix(cmd, "/"), len(ts))
}
