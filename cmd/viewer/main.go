package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DoyleJ11/live-leaderboard/internal/logger"
	"github.com/DoyleJ11/live-leaderboard/pkg/client"
	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	server := flag.String("server", "http://localhost:8000", "leaderboard server base URL")
	top := flag.Int("top", 10, "number of teams to show (0 for all)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	log, err := logger.New(*logLevel, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *server, *top, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("viewer stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, server string, top int, log *zap.Logger) error {
	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	c := client.New(client.Options{
		BaseURL:       server,
		Logger:        log.Named("client"),
		OnChange:      func([]types.Team, *types.Team) { notify() },
		OnStateChange: func(client.State) { notify() },
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := c.Run(ctx)
		if errors.Is(err, client.ErrGaveUp) {
			// keep showing the last board, refreshed over HTTP
			return poll(ctx, c, notify)
		}
		return err
	})
	g.Go(func() error {
		// the highlight window expires without a server event
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			render(os.Stdout, c, top)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}

func poll(ctx context.Context, c *client.Client, notify func()) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			teams, err := c.API().ListTeams(ctx)
			if err != nil {
				continue
			}
			c.Board().Replace(teams, nil)
			notify()
		}
	}
}

func render(w io.Writer, c *client.Client, top int) {
	board := c.Board()
	var b strings.Builder
	b.WriteString("\033[H\033[2J")
	fmt.Fprintf(&b, "LEADERBOARD  [%s]\n\n", c.State())

	highlighted := board.Highlighted()
	teams := board.Teams()
	if top > 0 {
		teams = board.Top(top)
	}
	for i, t := range teams {
		marker := " "
		switch board.Movement(t.Name) {
		case client.MovementUp:
			marker = "↑"
		case client.MovementDown:
			marker = "↓"
		}
		line := fmt.Sprintf("%3d. %s %-24s %-24s %6d", i+1, marker, t.Name, t.CompanyName, t.Score)
		if t.Name == highlighted {
			line = "\033[1;33m" + line + "\033[0m"
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if !board.Loaded() {
		b.WriteString("loading...\n")
	}
	_, _ = io.WriteString(w, b.String())
}
