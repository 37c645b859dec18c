package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	passage "github.com/passagelabs/passage"
	"github.com/passagelabs/passage/bind"
	"github.com/passagelabs/passage/bridge"
	"github.com/passagelabs/passage/marshal"
)

type modelState int

const (
	stateSelectMethod modelState = iota
	stateInputArgs
	stateShowResult
)

type inspectModel struct {
	err      error
	invoker  *bridge.Invoker
	methods  []*bind.Descriptor
	inputs   []textinput.Model
	result   string
	width    int
	selected int
	focusIdx int
	state    modelState
}

func newInspectModel(rt *bridge.Runtime, lib passage.Library, table *bind.Table) *inspectModel {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	return &inspectModel{
		invoker: rt.Invoker(lib),
		methods: table.Methods(),
		width:   width,
		state:   stateSelectMethod,
	}
}

type callResultMsg struct {
	err    error
	result string
}

func (m *inspectModel) Init() tea.Cmd {
	return nil
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectMethod && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectMethod && m.selected < len(m.methods)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectMethod:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMethod
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callMethod

			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectMethod
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *inspectModel) prepareInputs() {
	d := m.methods[m.selected]
	m.inputs = make([]textinput.Model, len(d.Params))
	for i, p := range d.Params {
		ti := textinput.New()
		ti.Placeholder = kindStr(p.Type)
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *inspectModel) callMethod() tea.Msg {
	d := m.methods[m.selected]

	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		v, err := convertArg(input.Value(), d.Params[i].Type)
		if err != nil {
			return callResultMsg{err: err}
		}
		args[i] = v
	}

	result, err := m.invoker.Call(context.Background(), d, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	if result == nil {
		return callResultMsg{result: "ok"}
	}
	return callResultMsg{result: fmt.Sprintf("%v", result)}
}

// convertArg parses user text into the parameter's Go type. Only the
// scalar-and-string subset is callable from the prompt.
func convertArg(value string, ct *marshal.CompiledType) (any, error) {
	switch ct.Kind {
	case marshal.KindString:
		return value, nil
	case marshal.KindBool:
		return value == "true" || value == "1", nil
	case marshal.KindI8:
		v, err := strconv.ParseInt(value, 10, 8)
		return int8(v), err
	case marshal.KindI16:
		v, err := strconv.ParseInt(value, 10, 16)
		return int16(v), err
	case marshal.KindI32:
		v, err := strconv.ParseInt(value, 10, 32)
		return int32(v), err
	case marshal.KindI64:
		return strconv.ParseInt(value, 10, 64)
	case marshal.KindF32:
		v, err := strconv.ParseFloat(value, 32)
		return float32(v), err
	case marshal.KindF64:
		return strconv.ParseFloat(value, 64)
	case marshal.KindByte:
		v, err := strconv.ParseUint(value, 10, 8)
		return uint8(v), err
	case marshal.KindPointer:
		v, err := strconv.ParseUint(value, 10, 32)
		return passage.Handle(v), err
	default:
		return nil, fmt.Errorf("parameter kind %s is not callable interactively", ct.Kind)
	}
}

func (m *inspectModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("passage inspect"))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectMethod:
		b.WriteString("Select a method to call:\n\n")
		for i, d := range m.methods {
			line := formatMethod(d)
			if !d.Available() {
				line += " " + dimStyle.Render("(unavailable)")
			}
			if i == m.selected {
				b.WriteString("> " + line)
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		d := m.methods[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", nameStyle.Render(d.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(kindStr(d.Params[i].Type)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		d := m.methods[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", nameStyle.Render(d.Name)))
		if m.err != nil {
			b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(nameStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(rt *bridge.Runtime, lib passage.Library, table *bind.Table) error {
	p := tea.NewProgram(newInspectModel(rt, lib, table), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
