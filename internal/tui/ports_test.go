// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"slices"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGraph struct {
	ports  []string
	inputs []string
	links  map[string][]string
	err    error
	cut    [][2]string
}

func (g *fakeGraph) Ports(bool) ([]string, error)   { return g.ports, g.err }
func (g *fakeGraph) InPorts(bool) ([]string, error) { return g.inputs, g.err }

func (g *fakeGraph) Connections(name string) ([]string, error) {
	return g.links[name], g.err
}

func (g *fakeGraph) Disconnect(src, dst string) error {
	g.cut = append(g.cut, [2]string{src, dst})
	g.links[src] = slices.DeleteFunc(slices.Clone(g.links[src]), func(s string) bool { return s == dst })
	g.links[dst] = slices.DeleteFunc(slices.Clone(g.links[dst]), func(s string) bool { return s == src })
	return nil
}

func newGraph() *fakeGraph {
	return &fakeGraph{
		ports:  []string{"system:capture_1", "system:playback_1", "me:in"},
		inputs: []string{"system:playback_1", "me:in"},
		links: map[string][]string{
			"system:capture_1":  {"me:in"},
			"me:in":             {"system:capture_1"},
			"system:playback_1": nil,
		},
	}
}

func update(t *testing.T, m PortListModel, msg tea.Msg) (PortListModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	pm, ok := next.(PortListModel)
	require.True(t, ok)
	return pm, cmd
}

func loaded(t *testing.T, g Graph) PortListModel {
	t.Helper()
	m := NewPortListModel(g)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = update(t, m, m.Init()())
	return m
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFetchPorts(t *testing.T) {
	m := loaded(t, newGraph())
	ports := m.Ports()
	require.Len(t, ports, 3)
	assert.False(t, ports[0].Input)
	assert.True(t, ports[1].Input)
	assert.Equal(t, []string{"me:in"}, ports[0].Connections)
	assert.Contains(t, m.View(), "Ports (3)")
	assert.Contains(t, m.View(), "system:capture_1")
}

func TestNavigateAndDetail(t *testing.T) {
	m := loaded(t, newGraph())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.selectedIndex)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, keys("j"))
	m, _ = update(t, m, keys("j"))
	assert.Equal(t, 2, m.selectedIndex)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, DetailScreen, m.activeScreen)
	assert.Contains(t, m.View(), "← system:capture_1")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ListScreen, m.activeScreen)
}

func TestDisconnectFromInputSide(t *testing.T) {
	g := newGraph()
	m := loaded(t, g)
	m, _ = update(t, m, keys("j"))
	m, _ = update(t, m, keys("j"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	_, cmd := update(t, m, keys("x"))
	require.NotNil(t, cmd)
	// Batch wraps the disconnect command; run every part.
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c != nil {
				if out := c(); out != nil {
					msg = out
				}
			}
		}
	}
	assert.Equal(t, [][2]string{{"system:capture_1", "me:in"}}, g.cut)
	m, _ = update(t, m, msg)
	assert.Empty(t, m.Ports()[2].Connections)
}

func TestRefreshKeepsSelection(t *testing.T) {
	g := newGraph()
	m := loaded(t, g)
	m, _ = update(t, m, keys("j"))

	g.ports = []string{"other:out", "system:capture_1", "system:playback_1", "me:in"}
	m, _ = update(t, m, RefreshMsg{})
	m, _ = update(t, m, m.fetchPorts())
	assert.Equal(t, "system:playback_1", m.Ports()[m.selectedIndex].Name)
}

func TestFetchError(t *testing.T) {
	g := newGraph()
	g.err = errors.New("server gone")
	m := loaded(t, g)
	assert.Contains(t, m.View(), "server gone")
}

func TestQuit(t *testing.T) {
	m := loaded(t, newGraph())
	_, cmd := update(t, m, keys("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewBeforeSize(t *testing.T) {
	assert.Equal(t, "Initializing...", NewPortListModel(newGraph()).View())
}
