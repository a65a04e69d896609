package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"moodmic/clipboard"
	"moodmic/emotion"
	"moodmic/hotkey"
	"moodmic/log"
	"moodmic/presenter"
)

type stateMsg presenter.State
type copiedMsg struct{ err error }
type tickMsg time.Time

type tuiModel struct {
	cmd      Commander
	state    presenter.State
	spinner  spinner.Model
	input    textinput.Model
	editing  bool
	frame    int
	width    int
	height   int
	modeLine string
	hotkey   string
	copyNote string
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
)

func newTUIModel(c Commander, modeLine, hotkeyLabel string) tuiModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Placeholder = "type or speak something"
	in.CharLimit = 2000
	in.Width = 60

	return tuiModel{
		cmd:      c,
		state:    c.Snapshot(),
		spinner:  sp,
		input:    in,
		modeLine: modeLine,
		hotkey:   hotkeyLabel,
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(tuiTick(), m.spinner.Tick)
}

func copyResult(st presenter.State) tea.Cmd {
	return func() tea.Msg {
		if st.Result == nil {
			return copiedMsg{err: clipboard.ErrEmpty}
		}
		text := fmt.Sprintf("%s %s %.2f", st.Emotion.Asset().Glyph, st.Result.Label, st.Result.Score)
		return copiedMsg{err: clipboard.Copy(text)}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-6, 10)

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateKeys(msg)

	case stateMsg:
		m.state = presenter.State(msg)
		if !m.editing && m.input.Value() != m.state.Input {
			m.input.SetValue(m.state.Input)
		}

	case copiedMsg:
		if msg.err != nil {
			m.copyNote = "copy failed: " + msg.err.Error()
			log.Warnf("copy result: %v", msg.err)
		} else {
			m.copyNote = "copied"
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m tuiModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.copyNote = ""
	if m.state.PermissionPrompt {
		switch msg.String() {
		case "y", "Y":
			m.cmd.AnswerPermission(true)
			return m, nil
		case "n", "N":
			m.cmd.AnswerPermission(false)
			return m, nil
		}
	}
	switch msg.Type {
	case tea.KeySpace:
		if m.state.Transcript.Capturing || m.state.Starting {
			m.cmd.StopListening()
		} else {
			m.cmd.StartListening()
		}
		return m, nil
	case tea.KeyEnter:
		m.cmd.Analyze()
		return m, nil
	case tea.KeyTab:
		m.editing = true
		return m, m.input.Focus()
	case tea.KeyEsc:
		m.cmd.Dismiss()
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "c":
		return m, copyResult(m.state)
	}
	return m, nil
}

func (m tuiModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		m.editing = false
		m.input.Blur()
		m.cmd.SetText(m.input.Value())
		m.cmd.Analyze()
		return m, nil
	case tea.KeyEsc, tea.KeyTab:
		m.editing = false
		m.input.Blur()
		m.cmd.SetText(m.input.Value())
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	st := m.state
	asset := st.Emotion.Asset()
	active := st.Busy()

	var b strings.Builder
	b.WriteString(renderMoodRing(m.frame, st.Emotion, active))
	b.WriteString("\n")

	mood := lipgloss.NewStyle().Foreground(lipgloss.Color(asset.Color)).Bold(true)
	if st.Result != nil {
		b.WriteString(fmt.Sprintf("  %s  %s  %s\n", asset.Glyph, mood.Render(st.Emotion.String()),
			dimStyle.Render(fmt.Sprintf("%s %.2f", st.Result.Label, st.Result.Score))))
	} else {
		b.WriteString(fmt.Sprintf("  %s  %s\n", asset.Glyph, dimStyle.Render("no mood yet")))
	}
	b.WriteString("\n")

	switch {
	case st.Transcript.Capturing:
		b.WriteString("  " + recStyle.Render("● LISTENING") + "\n")
	case st.Starting:
		b.WriteString("  " + m.spinner.View() + " connecting\n")
	case st.Loading:
		b.WriteString("  " + m.spinner.View() + " analyzing\n")
	default:
		b.WriteString("  " + dimStyle.Render("○ "+strings.ToUpper(st.Phase.String())) + "\n")
	}
	if m.modeLine != "" {
		b.WriteString("  " + dimStyle.Render(m.modeLine) + "\n")
	}
	b.WriteString("\n")

	if m.editing {
		b.WriteString("  " + m.input.View() + "\n")
	} else {
		text := st.Input
		if text == "" {
			text = dimStyle.Render(m.input.Placeholder)
		} else {
			text = textStyle.Render(strings.Join(wrapText(text, max(m.width-4, 10)), "\n  "))
		}
		b.WriteString("  " + text + "\n")
	}
	b.WriteString("\n")

	if st.Transcript.Err != "" && !st.Transcript.Capturing {
		b.WriteString("  " + noticeStyle.Render("⚠ "+st.Transcript.Err) + "\n")
	}
	if st.Notice != "" {
		b.WriteString("  " + noticeStyle.Render("⚠ "+st.Notice) + helpStyle.Render("  (esc)") + "\n")
	}
	if m.copyNote != "" {
		b.WriteString("  " + okStyle.Render(m.copyNote) + "\n")
	}
	if st.PermissionPrompt {
		b.WriteString("\n  " + promptStyle.Render("Allow microphone access? [y/n]") + "\n")
	}

	b.WriteString("\n  " + m.helpLine() + "\n")
	b.WriteString("  " + helpStyle.Render("moodmic "+version) + "\n")
	return b.String()
}

func (m tuiModel) helpLine() string {
	if m.editing {
		return keyStyle.Render("enter") + helpStyle.Render(" analyze  ") +
			keyStyle.Render("esc") + helpStyle.Render(" done")
	}
	line := keyStyle.Render("space") + helpStyle.Render(" listen  ") +
		keyStyle.Render("enter") + helpStyle.Render(" analyze  ") +
		keyStyle.Render("tab") + helpStyle.Render(" edit  ") +
		keyStyle.Render("c") + helpStyle.Render(" copy  ") +
		keyStyle.Render("q") + helpStyle.Render(" quit")
	if m.hotkey != "" {
		line += helpStyle.Render("  |  ") + keyStyle.Render(m.hotkey) + helpStyle.Render(" hold to talk")
	}
	return line
}

// ringPalette is the 256-colour ramp for each emotion, inner to outer.
var ringPalette = map[emotion.Emotion][]string{
	emotion.Angry:   {"224", "210", "203", "196", "160", "124", "88", "52"},
	emotion.Excited: {"230", "223", "216", "214", "208", "202", "166", "130"},
	emotion.Happy:   {"231", "230", "229", "228", "226", "220", "178", "136"},
	emotion.Love:    {"225", "219", "213", "207", "205", "199", "162", "125"},
	emotion.Neutral: {"255", "252", "249", "246", "243", "240", "238", "236"},
}

// renderMoodRing draws concentric rings with half-block characters, two
// pixels per cell. Rings breathe while a capture or request is running.
func renderMoodRing(frame int, e emotion.Emotion, active bool) string {
	const charsW = 32
	const charsH = 9
	const pixH = charsH * 2

	palette, ok := ringPalette[e]
	if !ok {
		palette = ringPalette[emotion.Neutral]
	}
	styles := make([]lipgloss.Style, len(palette)+1)
	for i, c := range palette {
		styles[i+1] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}

	breathe := math.Sin(float64(frame)*0.08) * 0.2
	if active {
		breathe = math.Sin(float64(frame)*0.25) * 0.8
	}

	cx := float64(charsW) / 2
	cy := float64(pixH) / 2
	pixel := func(x, y int) int {
		dx := (float64(x) - cx + 0.5) / 2
		dy := float64(y) - cy + 0.5
		dist := math.Sqrt(dx*dx + dy*dy)
		for i := range palette {
			radius := float64(i+1)*1.05 + breathe*float64(i)/float64(len(palette))
			if dist < radius {
				return i + 1
			}
		}
		return 0
	}

	var out strings.Builder
	for row := 0; row < charsH; row++ {
		out.WriteString("  ")
		for x := 0; x < charsW; x++ {
			top, bot := pixel(x, row*2), pixel(x, row*2+1)
			switch {
			case top == 0 && bot == 0:
				out.WriteString(" ")
			case top == bot:
				out.WriteString(styles[top].Render("█"))
			case bot == 0:
				out.WriteString(styles[top].Render("▀"))
			case top == 0:
				out.WriteString(styles[bot].Render("▄"))
			default:
				out.WriteString(styles[top].Background(lipgloss.Color(palette[bot-1])).Render("▀"))
			}
		}
		out.WriteString("\n")
	}
	return out.String()
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

func (a *app) modeLine() string {
	label := a.rec.Name()
	if lang := a.rec.GetLanguage(); lang != "" {
		label += " (" + lang + ")"
	}
	return fmt.Sprintf("[%s | %s]", label, a.cfg.Sentiment.BaseURL)
}

func (a *app) runTUI(ctx context.Context, cancel context.CancelFunc) int {
	a.start(ctx, true)

	hotkeyLabel := ""
	if a.hybrid != nil {
		if c, err := hotkey.ParseCombo(a.opts.hotkey); err == nil {
			hotkeyLabel = c.String()
		}
	}
	p := tea.NewProgram(newTUIModel(a.presenter, a.modeLine(), hotkeyLabel), tea.WithAltScreen())
	go forwardStates(ctx, a.presenter, func(st presenter.State) { p.Send(stateMsg(st)) })
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	a.stop(cancel)
	if err != nil {
		log.Errorf("TUI error: %v", err)
		return 1
	}
	return 0
}
