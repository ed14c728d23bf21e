package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var colorEnabled = true

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func printSuccess(format string, a ...any) {
	printStyled(successStyle, "✓", format, a...)
}

func printError(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if colorEnabled {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("✗"), msg)
		return
	}
	fmt.Fprintf(os.Stderr, "✗ %s\n", msg)
}

func printWarn(format string, a ...any) {
	printStyled(warnStyle, "!", format, a...)
}

func printDim(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if colorEnabled {
		fmt.Println(dimStyle.Render(msg))
		return
	}
	fmt.Println(msg)
}

func printStyled(style lipgloss.Style, mark, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if colorEnabled {
		fmt.Printf("%s %s\n", style.Render(mark), msg)
		return
	}
	fmt.Printf("%s %s\n", mark, msg)
}
