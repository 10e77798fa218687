package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/il-weaver/il"
	"github.com/wippyai/il-weaver/internal/fixture"
	"github.com/wippyai/il-weaver/resolve"
	"github.com/wippyai/il-weaver/store"
	"github.com/wippyai/il-weaver/vm"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <module>",
	Short: "Browse and run the methods of a module interactively",
	Long: `Inspect lists the methods of a module with their annotations. A static
method can be called with arguments typed in; the result is shown together with
the hook calls reported to Host.Trace.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cfg, err := settings(cmd, filepath.Dir(args[0]))
		if err != nil {
			return err
		}
		p := tea.NewProgram(newInspectModel(args[0], cfg.SearchPathsAbs()), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	annotationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type inspectModel struct {
	err         error
	mod         *resolve.Module
	machine     *vm.Machine
	recorder    *fixture.Recorder
	filename    string
	searchPaths []string
	result      string
	trace       []string
	methods     []methodInfo
	inputs      []textinput.Model
	selected    int
	focusIdx    int
	state       inspectState
}

type methodInfo struct {
	typeName    string
	def         *il.MethodDef
	signature   string
	annotations []string
}

type inspectState int

const (
	stateSelectMethod inspectState = iota
	stateInputArgs
	stateShowResult
	stateShowListing
)

func newInspectModel(filename string, searchPaths []string) *inspectModel {
	return &inspectModel{
		filename:    filename,
		searchPaths: searchPaths,
		state:       stateSelectMethod,
	}
}

type loadedMsg struct {
	err      error
	mod      *resolve.Module
	machine  *vm.Machine
	recorder *fixture.Recorder
	methods  []methodInfo
}

type callResultMsg struct {
	err    error
	result string
	trace  []string
}

func (m *inspectModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *inspectModel) loadModule() tea.Msg {
	st := store.NewFiles(false)
	im, err := st.Load(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}

	res := resolve.New(resolve.Config{Store: st, SearchPaths: m.searchPaths})
	mod := res.Register(im, m.filename)
	res.AddSearchPath(mod.Dir)

	host := vm.NewHost()
	rec, err := fixture.NewRecorder(host)
	if err != nil {
		return loadedMsg{err: err}
	}

	var methods []methodInfo
	for _, td := range im.Types {
		for _, md := range td.Methods {
			mi := methodInfo{
				typeName:  td.FullName(),
				def:       md,
				signature: im.MethodSigString(md.Name, md.Sig),
			}
			for _, a := range md.Annotations {
				mi.annotations = append(mi.annotations, annotationName(im, a))
			}
			for _, p := range md.Params {
				for _, a := range p.Annotations {
					mi.annotations = append(mi.annotations, p.Name+":"+annotationName(im, a))
				}
			}
			methods = append(methods, mi)
		}
	}

	return loadedMsg{
		mod:      mod,
		machine:  vm.New(vm.Config{Resolver: res, Host: host}),
		recorder: rec,
		methods:  methods,
	}
}

// annotationName returns the annotation type name of a.
func annotationName(m *il.Module, a il.Annotation) string {
	name := m.MethodName(a.Ctor)
	name, _ = strings.CutSuffix(name, "::.ctor")
	return "@" + name
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
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

		case "d":
			if m.state == stateSelectMethod && len(m.methods) > 0 {
				m.state = stateShowListing
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelectMethod:
				if len(m.methods) == 0 {
					break
				}
				if !m.methods[m.selected].def.IsStatic() {
					m.err = fmt.Errorf("only static methods can be called")
					m.state = stateShowResult
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMethod
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callMethod

			case stateShowResult, stateShowListing:
				m.reset()
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
			case stateShowResult, stateShowListing:
				m.reset()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.mod = msg.mod
		m.machine = msg.machine
		m.recorder = msg.recorder
		m.methods = msg.methods

	case callResultMsg:
		m.result = msg.result
		m.trace = msg.trace
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

func (m *inspectModel) reset() {
	m.state = stateSelectMethod
	m.result = ""
	m.trace = nil
	m.err = nil
}

func (m *inspectModel) prepareInputs() {
	md := m.methods[m.selected].def
	m.inputs = make([]textinput.Model, len(md.Sig.Params))
	for i, p := range md.Sig.Params {
		ti := textinput.New()
		ti.Placeholder = m.mod.Module.TypeSigString(p)
		ti.Prompt = md.ParamName(i) + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *inspectModel) callMethod() tea.Msg {
	if m.machine == nil {
		return callResultMsg{err: fmt.Errorf("module not loaded")}
	}

	mi := m.methods[m.selected]
	args := make([]vm.Value, len(m.inputs))
	for i, input := range m.inputs {
		v, err := convertArg(input.Value(), mi.def.Sig.Params[i])
		if err != nil {
			return callResultMsg{err: fmt.Errorf("%s: %w", mi.def.ParamName(i), err)}
		}
		args[i] = v
	}

	m.recorder.Reset()
	result, err := m.machine.Invoke(m.mod, mi.typeName, mi.def.Name, args...)
	trace := append([]string(nil), m.recorder.Log...)
	if err != nil {
		return callResultMsg{err: err, trace: trace}
	}
	if mi.def.Sig.Return.IsVoid() {
		return callResultMsg{result: "(void)", trace: trace}
	}
	return callResultMsg{result: fmt.Sprintf("%v", vm.Unbox(result)), trace: trace}
}

func convertArg(value string, t il.TypeSig) (vm.Value, error) {
	switch t.Kind {
	case il.ElemString, il.ElemObject:
		return value, nil
	case il.ElemBool:
		if value == "true" || value == "1" {
			return int32(1), nil
		}
		return int32(0), nil
	case il.ElemI1, il.ElemU1, il.ElemI2, il.ElemU2, il.ElemChar, il.ElemI4, il.ElemU4:
		v, err := strconv.ParseInt(value, 10, 32)
		return int32(v), err
	case il.ElemI8, il.ElemU8, il.ElemI, il.ElemU:
		v, err := strconv.ParseInt(value, 10, 64)
		return v, err
	case il.ElemR4, il.ElemR8:
		v, err := strconv.ParseFloat(value, 64)
		return v, err
	}
	return nil, fmt.Errorf("cannot enter a value of this type")
}

func (m *inspectModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.mod == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("IL Weaver"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	if m.mod.Module.Flags&il.ModuleFlagWoven != 0 {
		b.WriteString(" ")
		b.WriteString(annotationStyle.Render("woven"))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectMethod:
		b.WriteString("Select a method:\n\n")
		for i, mi := range m.methods {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + mi.typeName + "::" + mi.signature))
			} else {
				b.WriteString("  " + m.formatMethod(mi))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • d listing • q quit"))

	case stateInputArgs:
		mi := m.methods[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(mi.typeName+"::"+mi.def.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(m.mod.Module.TypeSigString(mi.def.Sig.Params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		mi := m.methods[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(mi.typeName+"::"+mi.def.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		if len(m.trace) > 0 {
			b.WriteString("\n\nHooks:\n")
			for _, line := range m.trace {
				b.WriteString("  " + annotationStyle.Render(line) + "\n")
			}
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))

	case stateShowListing:
		mi := m.methods[m.selected]
		b.WriteString(il.Disassemble(m.mod.Module, mi.def))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter back • q quit"))
	}

	return b.String()
}

func (m *inspectModel) formatMethod(mi methodInfo) string {
	s := typeStyle.Render(mi.typeName+"::") + funcStyle.Render(mi.signature)
	if len(mi.annotations) > 0 {
		s += " " + annotationStyle.Render(strings.Join(mi.annotations, " "))
	}
	return s
}
