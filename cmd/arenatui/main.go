// Command arenatui plays an arena session from the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/snekarena/client"
)

func main() {
	server := flag.String("server", "127.0.0.1:3000", "Arena server host:port")
	gameID := flag.String("game", "", "Game id to join; empty creates a new game")
	name := flag.String("name", "", "Display name; empty lets the server pick one")
	secure := flag.Bool("tls", false, "Use wss instead of ws")
	timeout := flag.Duration("timeout", 10*time.Second, "Connect timeout")
	flag.Parse()

	scheme := "ws"
	if *secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: *server, Path: "/ws"}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	c, err := client.Dial(ctx, u.String(), *timeout)
	cancel()
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}

	p := tea.NewProgram(initialModel(c, c.Frames(), *gameID, *name), tea.WithAltScreen())
	_, err = p.Run()
	_ = c.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running program: %v\n", err)
		os.Exit(1)
	}
}
