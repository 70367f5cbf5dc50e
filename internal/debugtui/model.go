// Package debugtui is an interactive single-step debugger for a method
// running under the vm package's executor: one instruction at a time, with
// the register file and a scrolling trace of what ran visible the whole
// time.
package debugtui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dexvm/vm"
)

const maxLogLines = 200

// Model is the debugger's state: the executor and frame being stepped,
// plus the UI's own scrollback and dimensions.
type Model struct {
	exec  *vm.Executor
	frame *vm.Frame

	classDesc  string
	methodName string

	log    []string
	halted bool
	err    error

	width  int
	height int
}

// New builds a debugger model over one method activation. Stepping starts
// from the method's first instruction; the caller has already resolved
// classDesc/method/args via the bridge.
func New(exec *vm.Executor, frame *vm.Frame, classDesc, methodName string) *Model {
	return &Model{
		exec:       exec,
		frame:      frame,
		classDesc:  classDesc,
		methodName: methodName,
		log:        []string{fmt.Sprintf("loaded %s.%s, %d registers", classDesc, methodName, len(frame.Registers))},
	}
}

// Run starts the bubbletea program and blocks until the user quits.
func Run(exec *vm.Executor, frame *vm.Frame, classDesc, methodName string) error {
	program := tea.NewProgram(New(exec, frame, classDesc, methodName), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s", "enter", " ":
			m.step()
		case "c":
			for !m.halted {
				m.step()
			}
		}
	}
	return m, nil
}

func (m *Model) step() {
	if m.halted {
		return
	}
	instr, has := m.frame.Current()
	if !has {
		m.halted = true
		m.appendLog("run off the end of the method")
		return
	}
	mnemonic := instr.Op.Mnemonic()

	result, terminal, more, err := m.exec.Step(m.frame)
	if !more {
		m.halted = true
		return
	}
	if err != nil {
		m.halted = true
		m.err = err
		m.appendLog(fmt.Sprintf("pc=%d %s: %v", m.frame.PC(), mnemonic, err))
		return
	}
	if terminal {
		m.halted = true
		m.appendLog(fmt.Sprintf("pc=%d %s -> returned %s", m.frame.PC(), mnemonic, result))
		return
	}
	m.appendLog(fmt.Sprintf("pc=%d %s", m.frame.PC(), mnemonic))
}

func (m *Model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	header := TitleStyle.Render(fmt.Sprintf("%s.%s", m.classDesc, m.methodName))
	status := m.renderStatus()

	regPane := PaneStyle.Width(m.width/3 - 2).Render(m.renderRegisters())
	logPane := PaneStyle.Width(m.width - m.width/3 - 4).Render(m.renderLog())

	body := lipgloss.JoinHorizontal(lipgloss.Top, regPane, logPane)
	help := MutedStyle.Render("s/enter: step   c: run to completion   q: quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, status, body, help)
}

func (m *Model) renderStatus() string {
	if m.err != nil {
		return HaltStyle.Render(fmt.Sprintf("halted: %v", m.err))
	}
	if m.halted {
		return HaltStyle.Render("halted: method returned")
	}
	instr, ok := m.frame.Current()
	if !ok {
		return HaltStyle.Render("halted")
	}
	return CurrentLineStyle.Render(fmt.Sprintf(" next: pc=%d %s ", m.frame.PC(), instr.Op.Mnemonic()))
}

func (m *Model) renderRegisters() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("registers"))
	b.WriteString("\n")
	for i, v := range m.frame.Registers {
		fmt.Fprintf(&b, "v%-3d %s\n", i, v.String())
	}
	return b.String()
}

func (m *Model) renderLog() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("trace"))
	b.WriteString("\n")
	start := 0
	visible := m.height - 8
	if visible < 1 {
		visible = 1
	}
	if len(m.log) > visible {
		start = len(m.log) - visible
	}
	for _, line := range m.log[start:] {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
