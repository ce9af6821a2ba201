// SPDX-License-Identifier: MIT

// Package tui is a terminal browser for the audio server's ports and the
// connections between them.
package tui

import (
	"fmt"
	"slices"
	"strings"

	"jackconnector/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D7D7D"))
)

var (
	keyQuit       = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp         = key.NewBinding(key.WithKeys("up", "k"))
	keyDown       = key.NewBinding(key.WithKeys("down", "j"))
	keyEnter      = key.NewBinding(key.WithKeys("enter"))
	keyBack       = key.NewBinding(key.WithKeys("esc"))
	keyRefresh    = key.NewBinding(key.WithKeys("r"))
	keyDisconnect = key.NewBinding(key.WithKeys("x"))
)

// Graph is the part of *audio.Client the browser needs.
type Graph interface {
	Ports(withOwn bool) ([]string, error)
	InPorts(withOwn bool) ([]string, error)
	Connections(fullName string) ([]string, error)
	Disconnect(src, dst string) error
}

var _ Graph = (*audio.Client)(nil)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	DetailScreen
)

// PortInfo is one row of the port list.
type PortInfo struct {
	Name        string
	Input       bool // Receives audio (a JACK input, this library's Capture direction).
	Connections []string
}

type portsMsg struct {
	ports []PortInfo
}

type errMsg struct {
	err error
}

// RefreshMsg asks the browser to reload the graph.
type RefreshMsg struct{}

// PortListModel represents the Bubble Tea model for browsing ports.
type PortListModel struct {
	graph         Graph
	ports         []PortInfo
	selectedIndex int
	connIndex     int
	viewport      viewport.Model
	ready         bool
	err           error
	status        string
	activeScreen  ScreenType
}

func NewPortListModel(g Graph) PortListModel {
	return PortListModel{graph: g, activeScreen: ListScreen}
}

func (m PortListModel) Init() tea.Cmd {
	return m.fetchPorts
}

// fetchPorts loads every port with its connections.
func (m PortListModel) fetchPorts() tea.Msg {
	all, err := m.graph.Ports(true)
	if err != nil {
		return errMsg{err}
	}
	inputs, err := m.graph.InPorts(true)
	if err != nil {
		return errMsg{err}
	}
	ports := make([]PortInfo, 0, len(all))
	for _, name := range all {
		conns, err := m.graph.Connections(name)
		if err != nil {
			return errMsg{err}
		}
		ports = append(ports, PortInfo{
			Name:        name,
			Input:       slices.Contains(inputs, name),
			Connections: conns,
		})
	}
	return portsMsg{ports}
}

func (m PortListModel) Ports() []PortInfo { return m.ports }

func (m PortListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.render()

	case portsMsg:
		var selected string
		if m.selectedIndex < len(m.ports) {
			selected = m.ports[m.selectedIndex].Name
		}
		m.ports = msg.ports
		m.selectedIndex = 0
		for i, p := range m.ports {
			if p.Name == selected {
				m.selectedIndex = i
			}
		}
		if m.activeScreen == DetailScreen && (len(m.ports) == 0 || m.ports[m.selectedIndex].Name != selected) {
			m.activeScreen = ListScreen
		}
		m.clampConn()
		m.err = nil
		m.render()

	case RefreshMsg:
		return m, m.fetchPorts

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}
		if key.Matches(msg, keyRefresh) {
			return m, m.fetchPorts
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, keyUp):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, keyDown):
				if m.selectedIndex < len(m.ports)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, keyEnter):
				if len(m.ports) > 0 {
					m.activeScreen = DetailScreen
					m.connIndex = 0
				}
			}
		case DetailScreen:
			switch {
			case key.Matches(msg, keyBack):
				m.activeScreen = ListScreen
			case key.Matches(msg, keyUp):
				if m.connIndex > 0 {
					m.connIndex--
				}
			case key.Matches(msg, keyDown):
				if m.connIndex < len(m.ports[m.selectedIndex].Connections)-1 {
					m.connIndex++
				}
			case key.Matches(msg, keyDisconnect):
				cmds = append(cmds, m.disconnect())
			}
		}
		m.render()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *PortListModel) clampConn() {
	if len(m.ports) == 0 {
		m.connIndex = 0
		return
	}
	if n := len(m.ports[m.selectedIndex].Connections); m.connIndex >= n {
		m.connIndex = max(0, n-1)
	}
}

// disconnect removes the highlighted connection and reloads.
func (m PortListModel) disconnect() tea.Cmd {
	port := m.ports[m.selectedIndex]
	if len(port.Connections) == 0 {
		return nil
	}
	other := port.Connections[m.connIndex]
	src, dst := port.Name, other
	if port.Input {
		src, dst = other, port.Name
	}
	return func() tea.Msg {
		if err := m.graph.Disconnect(src, dst); err != nil {
			return errMsg{err}
		}
		return m.fetchPorts()
	}
}

func (m *PortListModel) render() {
	if !m.ready {
		return
	}
	if m.activeScreen == DetailScreen {
		m.viewport.SetContent(m.renderPort())
	} else {
		m.viewport.SetContent(m.renderPorts())
	}
}

func (m PortListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nr: Retry • q: Quit", m.err)
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render(fmt.Sprintf("Ports (%d)", len(m.ports)))
		help = infoStyle.Render("↑/↓: Navigate • Enter: Connections • r: Refresh • q: Quit")
	} else {
		title = titleStyle.Render("Connections")
		help = infoStyle.Render("↑/↓: Select • x: Disconnect • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func direction(p PortInfo) string {
	if p.Input {
		return "in"
	}
	return "out"
}

func (m PortListModel) renderPorts() string {
	if len(m.ports) == 0 {
		return "No ports found."
	}

	var sb strings.Builder
	for i, p := range m.ports {
		line := fmt.Sprintf("%-3s %s", direction(p), p.Name)
		if n := len(p.Connections); n > 0 {
			line += dimStyle.Render(fmt.Sprintf("  (%d)", n))
		}
		if i == m.selectedIndex {
			line = highlightStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m PortListModel) renderPort() string {
	p := m.ports[m.selectedIndex]
	var sb strings.Builder

	arrow := "→"
	if p.Input {
		arrow = "←"
	}
	sb.WriteString(fmt.Sprintf("%s (%s)\n\n", p.Name, direction(p)))
	if len(p.Connections) == 0 {
		sb.WriteString(dimStyle.Render("  not connected"))
		sb.WriteString("\n")
		return sb.String()
	}
	for i, c := range p.Connections {
		line := fmt.Sprintf("  %s %s", arrow, c)
		if i == m.connIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// StartPortBrowser launches the TUI. subscribe, when non-nil, is handed a
// function that triggers a reload; wire it to port registration events.
func StartPortBrowser(g Graph, subscribe func(notify func()) error) error {
	p := tea.NewProgram(NewPortListModel(g), tea.WithAltScreen())
	if subscribe != nil {
		if err := subscribe(func() { p.Send(RefreshMsg{}) }); err != nil {
			return err
		}
	}
	_, err := p.Run()
	return err
}
