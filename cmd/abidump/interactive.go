package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/arrange"
	"github.com/wippyai/ffi-bridge/binding"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	abiStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var abiNames = []string{"sysv", "win64", "aarch64", "wasm32"}

type dumpModel struct {
	input   textinput.Model
	output  viewport.Model
	err     error
	abiIdx  int
	down    bool
	hasDump bool
	width   int
	height  int
}

func newDumpModel(sig, abiName string) *dumpModel {
	ti := textinput.New()
	ti.Placeholder = "(i32,f64)->f64"
	ti.Prompt = "signature: "
	ti.Width = 50
	ti.SetValue(sig)
	ti.Focus()

	abiIdx := 0
	for i, n := range abiNames {
		if n == strings.ToLower(abiName) {
			abiIdx = i
		}
	}

	return &dumpModel{
		input:  ti,
		output: viewport.New(80, 20),
		abiIdx: abiIdx,
	}
}

func (m *dumpModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *dumpModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.output.Width = msg.Width
		if msg.Height > 10 {
			m.output.Height = msg.Height - 8
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "tab":
			m.abiIdx = (m.abiIdx + 1) % len(abiNames)
			m.recompute()

		case "ctrl+d":
			m.down = !m.down
			m.recompute()

		case "enter":
			m.recompute()

		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.output, cmd = m.output.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *dumpModel) recompute() {
	m.err = nil
	m.hasDump = false

	sig := strings.TrimSpace(m.input.Value())
	if sig == "" {
		return
	}

	desc, err := descriptorByName(abiNames[m.abiIdx])
	if err != nil {
		m.err = err
		return
	}
	ft, err := parseSignature(sig)
	if err != nil {
		m.err = err
		return
	}

	seq, err := arrangeFor(desc, ft, m.down)
	if err != nil {
		m.err = err
		return
	}

	m.output.SetContent(renderSequence(desc, seq, m.down))
	m.output.GotoTop()
	m.hasDump = true
}

func (m *dumpModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ABI Dump"))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	for i, n := range abiNames {
		if i > 0 {
			b.WriteString("  ")
		}
		if i == m.abiIdx {
			b.WriteString(selectedStyle.Render(" " + n + " "))
		} else {
			b.WriteString(abiStyle.Render(n))
		}
	}
	dir := "upcall"
	if m.down {
		dir = "downcall"
	}
	b.WriteString("   direction: " + abiStyle.Render(dir))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	case m.hasDump:
		b.WriteString(m.output.View())
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("enter dump • tab abi • ctrl+d direction • esc quit"))
	return b.String()
}

func arrangeFor(desc *abi.Descriptor, ft binding.FuncType, down bool) (*binding.CallingSequence, error) {
	if down {
		return arrange.Downcall(desc, ft)
	}
	return arrange.Upcall(desc, ft)
}

func runInteractive(sig, abiName string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	p := tea.NewProgram(newDumpModel(sig, abiName), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
