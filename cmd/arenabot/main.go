// Command arenabot connects computer-controlled players to an arena session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/snekarena/arena"
	"github.com/brensch/snekarena/bot"
	"github.com/brensch/snekarena/client"
	"github.com/brensch/snekarena/game"
	"github.com/brensch/snekarena/logging"
)

type options struct {
	url     string
	gameID  string
	name    string
	restart time.Duration
	timeout time.Duration
}

func main() {
	server := flag.String("server", "127.0.0.1:3000", "Arena server host:port")
	gameID := flag.String("game", "bots", "Game id to join")
	count := flag.Int("bots", 2, "Number of bots to connect")
	name := flag.String("name", "bot", "Display name prefix")
	restart := flag.Duration("restart", 2*time.Second, "Delay before starting a new round after game over; 0 disables")
	timeout := flag.Duration("timeout", 10*time.Second, "Connect timeout")
	logLevel := flag.String("log-level", "info", "Log level (debug|info|warn|error)")
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, _ := logging.New(os.Stderr, logging.FormatText, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u := url.URL{Scheme: "ws", Host: *server, Path: "/ws"}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *count; i++ {
		opts := options{
			url:     u.String(),
			gameID:  *gameID,
			name:    fmt.Sprintf("%s%d", *name, i+1),
			restart: *restart,
			timeout: *timeout,
		}
		g.Go(func() error {
			return play(gctx, log.With("bot", opts.name), opts)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("bots stopped", "err", err)
		os.Exit(1)
	}
}

// play runs one bot until ctx is cancelled or the server hangs up.
func play(ctx context.Context, log *slog.Logger, opts options) error {
	dctx, cancel := context.WithTimeout(ctx, opts.timeout)
	c, err := client.Dial(dctx, opts.url, opts.timeout)
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	var (
		selfID  string
		restart <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-restart:
			restart = nil
			if err := c.Send(arena.EventStartGame, nil); err != nil {
				return err
			}
		case frame, ok := <-c.Frames():
			if !ok {
				return nil
			}
			switch f := frame.(type) {
			case arena.Connected:
				selfID = f.ID
				if err := c.Join(opts.gameID, opts.name); err != nil {
					return err
				}
				log.Info("joined", "game", opts.gameID, "id", selfID)
			case game.Snapshot:
				if !f.Active {
					continue
				}
				me, ok := f.Players[selfID]
				if !ok {
					continue
				}
				if d, ok := bot.Choose(f, selfID); ok && d != me.Direction {
					if err := c.Steer(d); err != nil {
						return err
					}
				}
			case arena.GameOver:
				winner := "none"
				if f.Winner != nil {
					winner = f.Winner.Name
				}
				log.Info("round over", "winner", winner)
				if opts.restart > 0 {
					restart = time.After(opts.restart)
				}
			case arena.ErrorMessage:
				log.Warn("server error", "message", f.Message)
			case client.Disconnected:
				if f.Err != nil {
					return f.Err
				}
				return nil
			}
		}
	}
}
