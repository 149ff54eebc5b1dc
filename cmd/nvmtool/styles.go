package main

import "github.com/charmbracelet/lipgloss"

type styles struct {
	addr   lipgloss.Style
	erased lipgloss.Style
	data   lipgloss.Style
	ascii  lipgloss.Style
	label  lipgloss.Style
	page   lipgloss.Style
}

func newStyles() styles {
	return styles{
		addr:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(4)),
		erased: lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(8)),
		data:   lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(7)),
		ascii:  lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(6)),
		label:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(3)),
		page:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(7)).Background(lipgloss.ANSIColor(4)),
	}
}
