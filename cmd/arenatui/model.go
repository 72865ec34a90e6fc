package main

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/snekarena/arena"
	"github.com/brensch/snekarena/client"
	"github.com/brensch/snekarena/game"
)

const maxLogLines = 6

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	foodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF3333"))
	deadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	boardStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder())
)

var keyDirections = map[string]game.Direction{
	"up": game.Up, "w": game.Up, "k": game.Up,
	"down": game.Down, "s": game.Down, "j": game.Down,
	"left": game.Left, "a": game.Left, "h": game.Left,
	"right": game.Right, "d": game.Right, "l": game.Right,
}

// sender writes one event to the server.
type sender interface {
	Send(typ string, data any) error
}

type model struct {
	client sender
	frames <-chan any

	gameID string
	name   string
	selfID string

	snap   *game.Snapshot
	events []string
	err    string
	closed bool
}

func initialModel(c sender, frames <-chan any, gameID, name string) model {
	return model{
		client: c,
		frames: frames,
		gameID: gameID,
		name:   name,
	}
}

func (m model) Init() tea.Cmd {
	return waitForFrame(m.frames)
}

// waitForFrame blocks for the next server frame.
func waitForFrame(frames <-chan any) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-frames
		if !ok {
			return client.Disconnected{}
		}
		return msg
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case arena.Connected:
		m.selfID = msg.ID
		if m.gameID == "" {
			m.send(arena.EventCreateGame, map[string]string{"playerName": m.name})
		} else {
			m.join()
		}
	case arena.GameCreated:
		m.gameID = msg.GameID
		m.logf("created game %s", msg.GameID)
		m.join()
	case game.Snapshot:
		m.snap = &msg
	case arena.PlayerJoined:
		if msg.Player != nil {
			m.logf("%s joined", msg.Player.Name)
		}
	case arena.PlayerLeft:
		m.logf("%s left", m.playerName(msg.PlayerID))
	case client.GameStarted:
		m.logf("round started")
	case arena.GameOver:
		if msg.Winner == nil {
			m.logf("round over: draw")
		} else {
			m.logf("round over: %s wins with %d", msg.Winner.Name, msg.Winner.Score)
		}
	case arena.DirectionChanged:
		// Rendering follows the next gameState.
	case arena.ErrorMessage:
		m.err = msg.Message
	case client.Disconnected:
		m.closed = true
		if msg.Err != nil {
			m.err = msg.Err.Error()
		}
		return m, nil
	default:
		return m, nil
	}
	return m, waitForFrame(m.frames)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter", " ":
		m.send(arena.EventStartGame, nil)
		return m, nil
	case "r":
		m.send(arena.EventRequestGameState, nil)
		return m, nil
	}
	if d, ok := keyDirections[key]; ok {
		m.send(arena.EventChangeDirection, map[string]string{"direction": string(d)})
	}
	return m, nil
}

func (m *model) join() {
	m.send(arena.EventJoinGame, map[string]string{"gameId": m.gameID, "playerName": m.name})
}

func (m *model) send(typ string, data any) {
	if m.closed || m.client == nil {
		return
	}
	if err := m.client.Send(typ, data); err != nil {
		m.err = err.Error()
	}
}

func (m *model) logf(format string, args ...any) {
	m.events = append([]string{fmt.Sprintf(format, args...)}, m.events...)
	if len(m.events) > maxLogLines {
		m.events = m.events[:maxLogLines]
	}
}

func (m model) playerName(id string) string {
	if m.snap != nil {
		if p, ok := m.snap.Players[id]; ok {
			return p.Name
		}
	}
	return id
}

func (m model) View() string {
	var b strings.Builder
	title := "snekarena"
	if m.gameID != "" {
		title += " · game " + m.gameID
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if m.snap == nil {
		b.WriteString("waiting for game state...\n")
	} else {
		b.WriteString(boardStyle.Render(renderBoard(*m.snap, m.selfID)))
		b.WriteString("\n")
		b.WriteString(renderScores(*m.snap, m.selfID))
	}

	for _, e := range m.events {
		b.WriteString(e + "\n")
	}
	if m.err != "" {
		b.WriteString(errorStyle.Render("error: "+m.err) + "\n")
	}
	if m.closed {
		b.WriteString("disconnected\n")
	}
	b.WriteString("\narrows/wasd steer, enter starts, r resyncs, q quits.\n")
	return b.String()
}

// renderBoard draws one character per grid cell. Heads are drawn last so
// they stay visible where bodies overlap.
func renderBoard(snap game.Snapshot, selfID string) string {
	if snap.GridSize <= 0 {
		return ""
	}
	cols, rows := snap.Width/snap.GridSize, snap.Height/snap.GridSize
	cells := make([][]string, rows)
	for y := range cells {
		cells[y] = make([]string, cols)
		for x := range cells[y] {
			cells[y][x] = " "
		}
	}
	put := func(p game.Point, s string) {
		x, y := p.X/snap.GridSize, p.Y/snap.GridSize
		if x < 0 || y < 0 || x >= cols || y >= rows {
			return
		}
		cells[y][x] = s
	}

	for _, f := range snap.Food {
		put(f, foodStyle.Render("*"))
	}
	ids := make([]string, 0, len(snap.Players))
	for id := range snap.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := snap.Players[id]
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color))
		if !p.Alive {
			style = deadStyle
		}
		for i := len(p.Segments) - 1; i >= 1; i-- {
			put(p.Segments[i], style.Render("o"))
		}
	}
	for _, id := range ids {
		p := snap.Players[id]
		if len(p.Segments) == 0 {
			continue
		}
		head := "@"
		if id == selfID {
			head = "#"
		}
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color)).Bold(true)
		if !p.Alive {
			style, head = deadStyle, "x"
		}
		put(p.Segments[0], style.Render(head))
	}

	lines := make([]string, rows)
	for y := range cells {
		lines[y] = strings.Join(cells[y], "")
	}
	return strings.Join(lines, "\n")
}

func renderScores(snap game.Snapshot, selfID string) string {
	players := make([]*game.Player, 0, len(snap.Players))
	for _, p := range snap.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].ID < players[j].ID
	})

	var b strings.Builder
	state := "waiting"
	if snap.Active {
		state = "playing"
	}
	fmt.Fprintf(&b, "%s, %d players\n", state, len(players))
	for _, p := range players {
		marker := " "
		if p.ID == selfID {
			marker = ">"
		}
		status := ""
		if !p.Alive {
			status = " (dead)"
		}
		line := fmt.Sprintf("%s %-16s %4d%s", marker, p.Name, p.Score, status)
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color)).Render(line))
		b.WriteString("\n")
	}
	return b.String()
}
