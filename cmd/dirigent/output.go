package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/dirigent-sh/dirigent/pkg/models"
)

var (
	planTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	phaseStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	planBoxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// printStatus prints a colored status line.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	c.Printf("%s ", symbol)
	fmt.Println(message)
}

// renderCognition formats the planner's analysis for the terminal.
func renderCognition(cog models.Cognition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", planTitleStyle.Render("Analysis"))
	fmt.Fprintf(&b, "  intent      %s (%.0f%% confidence)\n", cog.Intent, cog.Confidence*100)
	fmt.Fprintf(&b, "  complexity  %.1f/10\n", cog.Complexity)
	fmt.Fprintf(&b, "  risk        %s\n", cog.Risk)
	if len(cog.Entities) > 0 {
		fmt.Fprintf(&b, "  entities    %s\n", strings.Join(cog.Entities, ", "))
	}
	if len(cog.RequiredCapabilities) > 0 {
		fmt.Fprintf(&b, "  needs       %s\n", strings.Join(cog.RequiredCapabilities, ", "))
	}
	return b.String()
}

// renderPlan formats an orchestration plan for the terminal.
func renderPlan(plan models.OrchestrationPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n",
		planTitleStyle.Render("Plan"),
		dimStyle.Render(fmt.Sprintf("strategy=%s est=%s", plan.Strategy, plan.EstimatedDuration)))

	for _, ph := range plan.Phases {
		fmt.Fprintf(&b, "%s %s\n", phaseStyle.Render("▸ "+ph.Name), dimStyle.Render(ph.EstimatedDuration.String()))
		if len(ph.Workers) > 0 {
			fmt.Fprintf(&b, "    workers: %s\n", strings.Join(ph.Workers, ", "))
		}
		if len(ph.Tools) > 0 {
			fmt.Fprintf(&b, "    tools:   %s\n", strings.Join(ph.Tools, ", "))
		}
	}
	return planBoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
