// Package tui implements the terminal front end of the chord demonstrator.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/justchord-go"
	"github.com/cbegin/justchord-go/internal/tuning"
)

// unlockTimeout bounds how long a key press waits for the audio device.
const unlockTimeout = 5 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	lcdStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Background(lipgloss.Color("0")).Padding(0, 1)
	onStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10")).Bold(true).Padding(0, 1)
	offStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	keyHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Model is the bubbletea model driving a Player.
type Model struct {
	Player   *justchord.Player
	OnParams func(justchord.Params)

	Width     int
	Height    int
	ShowHelp  bool
	StatusMsg string
	ErrMsg    string
	unlocking bool
}

func NewModel(pl *justchord.Player) Model {
	return Model{Player: pl, Width: 80, Height: 24}
}

type unlockedMsg struct{ err error }

type toggledMsg struct {
	slot     justchord.Slot
	sounding bool
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.EnterAltScreen
}

func (m Model) unlockCmd() tea.Cmd {
	pl := m.Player
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		return unlockedMsg{err: pl.Unlock(ctx)}
	}
}

func (m Model) toggleCmd(slot justchord.Slot) tea.Cmd {
	pl := m.Player
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		return toggledMsg{slot: slot, sounding: pl.Toggle(ctx, slot)}
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case unlockedMsg:
		m.unlocking = false
		if msg.err != nil {
			m.ErrMsg = "audio unavailable: " + msg.err.Error()
			return m, nil
		}
		m.ErrMsg = ""
		m.StatusMsg = "audio enabled"
		return m, nil

	case toggledMsg:
		if msg.sounding {
			m.StatusMsg = msg.slot.String() + " on"
			m.ErrMsg = ""
		} else if m.Player.Unlocked() {
			m.StatusMsg = msg.slot.String() + " off"
		} else {
			m.ErrMsg = "audio is locked; press enter to enable it"
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.ShowHelp {
		m.ShowHelp = false
		return m, nil
	}
	p := m.Player.Parameters()
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.Player.StopAll()
		return m, tea.Quit
	case "?":
		m.ShowHelp = true
	case "enter":
		if !m.Player.Unlocked() && !m.unlocking {
			m.unlocking = true
			m.StatusMsg = "enabling audio..."
			return m, m.unlockCmd()
		}
	case "1":
		return m, m.toggleCmd(justchord.SlotRoot)
	case "2":
		return m, m.toggleCmd(justchord.SlotThird)
	case "3":
		return m, m.toggleCmd(justchord.SlotFifth)
	case "s", " ":
		m.Player.StopAll()
		m.StatusMsg = "all tones stopped"
	case "left", "h":
		root := stepRoot(p.Root, -1)
		return m.apply(justchord.Update{RootPitch: &root})
	case "right", "l":
		root := stepRoot(p.Root, 1)
		return m.apply(justchord.Update{RootPitch: &root})
	case "up", "k":
		o := p.Octave + 1
		return m.apply(justchord.Update{Octave: &o})
	case "down", "j":
		o := p.Octave - 1
		return m.apply(justchord.Update{Octave: &o})
	case "m":
		q := justchord.Minor
		if p.Quality == justchord.Minor {
			q = justchord.Major
		}
		return m.apply(justchord.Update{Quality: &q})
	case "t":
		s := justchord.Just
		if p.System == justchord.Just {
			s = justchord.Equal
		}
		return m.apply(justchord.Update{Tuning: &s})
	case "w":
		w := p.Waveform.Next()
		return m.apply(justchord.Update{Waveform: &w})
	case "+", "=":
		ref := p.Reference + 1
		return m.apply(justchord.Update{ReferenceFrequency: &ref})
	case "-", "_":
		ref := p.Reference - 1
		return m.apply(justchord.Update{ReferenceFrequency: &ref})
	}
	return m, nil
}

func (m Model) apply(u justchord.Update) (tea.Model, tea.Cmd) {
	if err := m.Player.SetParameters(u); err != nil {
		m.ErrMsg = err.Error()
		return m, nil
	}
	m.ErrMsg = ""
	if m.OnParams != nil {
		m.OnParams(m.Player.Parameters())
	}
	return m, nil
}

// stepRoot moves label by delta semitones, wrapping around the octave. An
// unknown label restarts from the default root.
func stepRoot(label string, delta int) string {
	idx, ok := tuning.PitchIndex(label)
	if !ok {
		return tuning.DefaultRoot
	}
	n := len(tuning.PitchClasses)
	return tuning.PitchClasses[((idx+delta)%n+n)%n].Label
}

// View implements tea.Model
func (m Model) View() string {
	if m.ShowHelp {
		return m.helpView()
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("justchord"))
	b.WriteString("\n\n")
	b.WriteString(lcdStyle.Render(m.Player.Display()))
	b.WriteString("\n\n")
	b.WriteString(m.paramsView())
	b.WriteString("\n\n")
	b.WriteString(m.tonesView())
	b.WriteString("\n\n")
	if !m.Player.Unlocked() {
		b.WriteString(bannerStyle.Render("Press enter to enable audio"))
		b.WriteString("\n")
	}
	if m.ErrMsg != "" {
		b.WriteString(errorStyle.Render(m.ErrMsg))
		b.WriteString("\n")
	} else if m.StatusMsg != "" {
		b.WriteString(labelStyle.Render(m.StatusMsg))
		b.WriteString("\n")
	}
	b.WriteString(keyHelpStyle.Render("1/2/3 toggle  ←/→ root  ↑/↓ octave  m quality  t tuning  w wave  +/- A4  s stop  ? help  q quit"))
	return b.String()
}

func (m Model) paramsView() string {
	p := m.Player.Parameters()
	field := func(label, value string) string {
		return labelStyle.Render(label+" ") + valueStyle.Render(value)
	}
	return strings.Join([]string{
		field("A4", fmt.Sprintf("%.1f Hz", p.Reference)),
		field("root", p.Root),
		field("chord", p.Quality.String()),
		field("tuning", p.System.String()),
		field("octave", fmt.Sprintf("%+d", p.Octave)),
		field("wave", p.Waveform.String()),
	}, "   ")
}

func (m Model) tonesView() string {
	names := m.Player.ChordNoteNames()
	freqs := m.Player.Frequencies()
	cents := m.Player.Deviation()
	playing := m.Player.Playing()
	cells := make([]string, len(names))
	for i := range names {
		text := fmt.Sprintf("%d %-5s %-2s %8.2f Hz %+6.1f¢", i+1, justchord.Slot(i), names[i], freqs[i], cents[i])
		if playing[i] {
			cells[i] = onStyle.Render(text)
		} else {
			cells[i] = offStyle.Render(text)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, cells...)
}

func (m Model) helpView() string {
	help := `justchord keys

  enter      enable audio
  1 2 3      toggle root, third, fifth
  ← →  h l   previous / next root pitch
  ↑ ↓  k j   octave up / down (-2..+2)
  m          major / minor
  t          equal / just tuning
  w          next waveform
  + -        reference A4 ±1 Hz
  s, space   stop all tones
  q          quit

press any key to return`
	return titleStyle.Render(help)
}
