package cli

import "github.com/charmbracelet/lipgloss"

type styles struct {
	addr     lipgloss.Style
	operator lipgloss.Style
	channel  lipgloss.Style
	global   lipgloss.Style
	keyOn    lipgloss.Style
	music    lipgloss.Style
	effect   lipgloss.Style
	idle     lipgloss.Style
	err      lipgloss.Style
}

func newStyles() styles {
	return styles{
		addr:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(3)),
		operator: lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(6)),
		channel:  lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(4)),
		global:   lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(5)),
		keyOn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(10)),
		music:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(2)),
		effect:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(11)),
		idle:     lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(8)),
		err:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(7)).Background(lipgloss.ANSIColor(1)),
	}
}
