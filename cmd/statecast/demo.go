package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statecast"
)

// demoCmd runs a scripted session against an in-process store.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted session and print every notification",
	Long: `Run a scripted session against an in-memory store seeded with the
built-in sample data. Every notification received by the session's
observers is printed, so the order of updates can be followed step by step.

No network listener is opened.

Example:
  statecast demo
  statecast demo --delay 500ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		delay, err := cmd.Flags().GetDuration("delay")
		if err != nil {
			return fmt.Errorf("invalid delay: %w", err)
		}
		return runDemo(cmd.Context(), cmd.OutOrStdout(), delay)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().Duration("delay", 200*time.Millisecond, "simulated latency of the async steps")
}

func runDemo(ctx context.Context, out io.Writer, delay time.Duration) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	st, err := statecast.NewStore(
		statecast.DefaultSeedUsers(),
		statecast.DefaultSeedMessages(time.Now()),
		statecast.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		statecast.WithUsersLoadDelay(delay),
		statecast.WithActiveUsersDelay(delay),
		statecast.WithOperationDelay(delay),
	)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	var subs statecast.Subscriptions
	defer subs.ReleaseAll()

	step := func(name string) {
		printf("\n==> %s\n", name)
	}
	stats := func() {
		s := st.Statistics()
		printf("    stats total=%d active=%d inactive=%d\n", s.Total, s.Active, s.Inactive)
	}
	wait := func(t *statecast.Task) error {
		select {
		case <-t.Done():
			return nil
		case <-ctx.Done():
			t.Cancel()
			return ctx.Err()
		}
	}

	step("subscribe")
	subs.Add(
		st.SubscribeUsers(func(users []statecast.User) {
			names := make([]string, 0, len(users))
			for _, u := range users {
				mark := ""
				if !u.Active {
					mark = " (inactive)"
				}
				names = append(names, fmt.Sprintf("#%d %s%s", u.ID, u.Name, mark))
			}
			printf("    [users] %s\n", strings.Join(names, ", "))
		}),
		st.SubscribeMessages(func(msgs []statecast.Message) {
			if len(msgs) == 0 {
				printf("    [messages] 0 entries\n")
				return
			}
			printf("    [messages] %d entries, latest %s: %s\n", len(msgs), msgs[0].Kind, msgs[0].Text)
		}),
		st.SubscribeBusy(func(busy bool) {
			printf("    [busy] %t\n", busy)
		}),
	)
	stats()

	step("toggle user 3")
	st.ToggleUserActive(3)
	stats()

	step("add user")
	st.AddUser("Demo User", "demo@example.com")
	stats()

	step("run operation")
	if err := wait(st.RunOperation(nil)); err != nil {
		return err
	}

	step("reload users")
	if err := wait(st.LoadUsers(nil)); err != nil {
		return err
	}

	step("query active users")
	var active []statecast.User
	if err := wait(st.ActiveUsers(func(u []statecast.User) { active = u })); err != nil {
		return err
	}
	printf("    %d active users\n", len(active))

	step("clear messages")
	st.ClearMessages()

	step("release subscriptions")
	subs.ReleaseAll()
	st.AppendMessage("nobody is listening", statecast.KindInfo)
	printf("    %d messages in store, no notification printed\n", len(st.Messages()))

	return nil
}
