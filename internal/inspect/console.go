// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// MaxHistory is the number of queries kept in the history file.
const MaxHistory = 1000

var promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF9900"))

// DefaultHistoryFile is where console queries persist between sessions.
func DefaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".subfish_inspect_history"
	}
	return filepath.Join(home, ".subfish_inspect_history")
}

type exchange struct {
	query  string
	result string
}

// Model is the interactive console. It is a bubbletea model.
type Model struct {
	in          *Inspector
	input       textinput.Model
	banner      string
	historyFile string
	history     []string
	histIndex   int
	session     []exchange
}

// NewModel returns a console over in. Queries are recalled from and saved to
// historyFile unless it is empty.
func NewModel(in *Inspector, banner, historyFile string) Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 2048
	ti.Width = 999
	ti.Prompt = ""
	ti.Cursor.SetMode(cursor.CursorBlink)

	return Model{
		in:          in,
		input:       ti,
		banner:      banner,
		historyFile: historyFile,
		history:     loadHistory(historyFile),
		histIndex:   -1,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "enter":
		entry := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		if entry == "" {
			return m, nil
		}
		if entry == "exit" || entry == "quit" {
			return m, tea.Quit
		}

		var result string
		if entry == "help" {
			result = Help
		} else if out, err := m.in.Eval(entry); err != nil {
			result = "error: " + err.Error()
		} else {
			result = out
		}

		m.history = append(m.history, entry)
		m.histIndex = -1
		m.session = append(m.session, exchange{query: entry, result: result})
		saveHistory(m.historyFile, m.history)
		return m, nil

	case "up":
		if len(m.history) == 0 {
			return m, nil
		}
		if m.histIndex == -1 {
			m.histIndex = len(m.history) - 1
		} else if m.histIndex > 0 {
			m.histIndex--
		}
		m.input.SetValue(m.history[m.histIndex])
		m.input.CursorEnd()
		return m, nil

	case "down":
		if m.histIndex >= 0 && m.histIndex < len(m.history)-1 {
			m.histIndex++
			m.input.SetValue(m.history[m.histIndex])
			m.input.CursorEnd()
		} else {
			m.histIndex = -1
			m.input.SetValue("")
		}
		return m, nil

	case "ctrl+c", "esc":
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	prompt := promptStyle.Render("> ")

	lines := []string{m.banner, "Type 'help' for syntax, 'exit' or Ctrl+C to quit."}
	for _, x := range m.session {
		lines = append(lines, prompt+x.query)
		if x.result != "" {
			lines = append(lines, x.result)
		}
	}
	lines = append(lines, prompt+m.input.View())

	return strings.Join(lines, "\n")
}

// Run drives the console until the user quits or ctx is done.
func Run(ctx context.Context, in *Inspector, banner, historyFile string, r io.Reader, w io.Writer) error {
	p := tea.NewProgram(NewModel(in, banner, historyFile),
		tea.WithContext(ctx),
		tea.WithInput(r),
		tea.WithOutput(w),
	)
	_, err := p.Run()
	return err
}

// Help describes the query syntax.
const Help = `Query modes:
  Vpc.VpcId                        value at a path, documents as yaml
  Subnets.#.CidrBlock              gjson paths work too
  Subnets[1].Tags{Name}            drill paths index lists and read tags
  .Vpc                             value at a path as json
  .                                the whole document as json
  /length(Subnets)                 HCL expression over the top-level keys
  upper(Vpc.VpcId)                 a function call is an expression
  /[for s in Subnets : s.SubnetId] for expressions
  /try(Cluster.Name, "none")       try and can guard missing keys
  /state.Vpc                       the whole document is state

Special queries:
  keys                             top-level keys
  help                             this text
  exit, quit                       leave the console

Navigation:
  up/down                          walk the query history
  Ctrl+C, Esc                      leave the console`

func loadHistory(filename string) []string {
	if filename == "" {
		return nil
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer f.Close()

	var history []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			history = append(history, line)
		}
	}
	return history
}

func saveHistory(filename string, history []string) {
	if filename == "" {
		return
	}
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		log.Debugf("failed to save history: %v", err)
		return
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, h := range history {
		fmt.Fprintln(bw, h)
	}
	if err := bw.Flush(); err != nil {
		log.Debugf("failed to save history: %v", err)
	}
}
