// Command netcode-demo is a terminal dashboard that runs a real client and
// server over loopback UDP and visualizes the handshake spec.md §4.3/§4.4
// describe: the client's named states and the server's ClientSlot table.
// It adds no protocol behavior of its own.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
	"netcode/netcode/matcher"
	"netcode/netcode/server"
	"netcode/netlog"

	netcodeclient "netcode/netcode/client"
)

const (
	protocolID = 0x4e4554434f444500 // "NETCODE\0", arbitrary demo constant
	maxClients = 16
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "netcode-demo:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var privateKey [codec.KeyBytes]byte
	if _, err := rand.Read(privateKey[:]); err != nil {
		return fmt.Errorf("generating server private key: %w", err)
	}

	serverTransport, err := server.NewUDPTransport([]addr.Address{mustParse("127.0.0.1:0")})
	if err != nil {
		return fmt.Errorf("binding server socket: %w", err)
	}
	defer serverTransport.Close()
	publicAddr := serverTransport.LocalAddrs()[0]

	srv, err := server.New(server.Config{
		ProtocolID:    protocolID,
		PrivateKey:    privateKey,
		PublicAddress: publicAddr,
		MaxClients:    maxClients,
		Transport:     serverTransport,
		Logger:        netlog.NewNullLogger(),
	})
	if err != nil {
		return fmt.Errorf("constructing server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	tok, err := matcher.Mint(matcher.Params{
		ProtocolID:      protocolID,
		PrivateKey:      privateKey,
		ClientID:        1,
		ServerAddrs:     []addr.Address{publicAddr},
		TimeoutSecond:   15,
		ExpirySeconds:   300,
		CreateTimestamp: uint64(time.Now().Unix()),
	})
	if err != nil {
		return fmt.Errorf("minting connect token: %w", err)
	}
	tokenBytes := tok.Marshal()

	clientTransport, err := netcodeclient.NewUDPTransport(addr.NoneAddr)
	if err != nil {
		return fmt.Errorf("binding client socket: %w", err)
	}
	defer clientTransport.Close()

	m := newModel(srv, cancel)
	cl := netcodeclient.New(netcodeclient.Config{
		ProtocolID:    protocolID,
		Transport:     clientTransport,
		Logger:        netlog.NewNullLogger(),
		OnStateChange: m.recordStateChange,
	})
	m.client = cl
	m.tokenB64 = base64.StdEncoding.EncodeToString(tokenBytes)

	go func() { _ = server.Run(ctx, srv, serverTransport) }()
	go func() { _ = netcodeclient.Run(ctx, cl, clientTransport) }()

	if err := cl.Connect(tokenBytes, time.Now()); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	p := tea.NewProgram(m)
	_, err = p.Run()
	return err
}

func mustParse(s string) addr.Address {
	a, err := addr.Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type stateTransition struct {
	from, to netcodeclient.State
	at       time.Time
}

var slotColumns = []table.Column{
	{Title: "Slot", Width: 4},
	{Title: "Connected", Width: 9},
	{Title: "Confirmed", Width: 9},
	{Title: "Addr", Width: 22},
	{Title: "ClientID", Width: 10},
	{Title: "Queue", Width: 5},
}

type model struct {
	srv    *server.Server
	client *netcodeclient.Client
	cancel context.CancelFunc

	tokenB64  string
	history   []stateTransition
	lastState netcodeclient.State
	slotTable table.Model
	copied    string
}

func newModel(srv *server.Server, cancel context.CancelFunc) *model {
	t := table.New(
		table.WithColumns(slotColumns),
		table.WithRows(nil),
		table.WithHeight(maxClients),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return &model{srv: srv, cancel: cancel, slotTable: t, lastState: netcodeclient.Disconnected}
}

// recordStateChange is passed as Client.Config.OnStateChange; it runs on
// the client's own tick goroutine, so it only appends — rendering happens
// on the next tickMsg in Update, which owns the model.
func (m *model) recordStateChange(old, new netcodeclient.State) {
	m.history = append(m.history, stateTransition{from: old, to: new, at: time.Now()})
	if len(m.history) > 8 {
		m.history = m.history[len(m.history)-8:]
	}
}

func (m *model) Init() tea.Cmd {
	return tickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		case "c":
			if err := clipboard.WriteAll(m.tokenB64); err == nil {
				m.copied = "copied connect token to clipboard"
			} else {
				m.copied = fmt.Sprintf("clipboard error: %v", err)
			}
			return m, nil
		}
	case tickMsg:
		m.lastState = m.client.State()
		m.slotTable.SetRows(slotRows(m.srv.Slots()))
		return m, tickCmd()
	}

	var cmd tea.Cmd
	m.slotTable, cmd = m.slotTable.Update(msg)
	return m, cmd
}

func slotRows(slots []server.SlotInfo) []table.Row {
	rows := make([]table.Row, 0, len(slots))
	for _, s := range slots {
		addrStr := "-"
		if !s.Addr.IsNone() {
			addrStr = s.Addr.String()
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", s.Index),
			fmt.Sprintf("%v", s.Connected),
			fmt.Sprintf("%v", s.Confirmed),
			addrStr,
			fmt.Sprintf("%d", s.ClientID),
			fmt.Sprintf("%d", s.QueueDepth),
		})
	}
	return rows
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func (m *model) View() string {
	out := headerStyle.Render("netcode-demo") + "\n"
	out += fmt.Sprintf("client state: %s\n\n", m.lastState)

	out += "recent transitions:\n"
	for _, tr := range m.history {
		out += fmt.Sprintf("  %s -> %s\n", tr.from, tr.to)
	}

	out += "\nserver slots:\n" + m.slotTable.View() + "\n"

	if m.copied != "" {
		out += "\n" + m.copied + "\n"
	}
	out += "\n" + dimStyle.Render("c: copy connect token   q: quit") + "\n"
	return out
}
