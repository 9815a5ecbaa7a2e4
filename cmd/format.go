package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/endomorphosis/websearch/pkg/search"
)

// Define styles using lipgloss
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	descStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			Margin(1, 0, 1, 0)

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)
)

// printResponse renders a search response for the terminal.
func printResponse(resp *search.Response) {
	if len(resp.Items) == 0 {
		fmt.Println(noDataStyle.Render("No results found"))
		return
	}

	for i, item := range resp.Items {
		fmt.Printf("%d. %s\n", i+1, titleStyle.Render(item.Title))
		fmt.Printf("   %s\n", urlStyle.Render(item.URL))
		if item.Description != "" {
			fmt.Printf("   %s\n", descStyle.Render(item.Description))
		}
		if i < len(resp.Items)-1 {
			fmt.Println()
		}
	}

	fmt.Println()
	fmt.Println(metaStyle.Render(formatMeta(resp.Meta)))
}

// formatMeta summarizes where a response came from.
func formatMeta(meta search.Meta) string {
	parts := []string{
		fmt.Sprintf("%d results", meta.Count),
		fmt.Sprintf("provider: %s", meta.Provider),
		fmt.Sprintf("source: %s", meta.Source),
	}
	if meta.Total > 0 {
		parts = append(parts, fmt.Sprintf("total: %s", formatNumber(meta.Total)))
	}
	if meta.Cached && meta.CacheAgeSeconds != nil {
		age := time.Duration(*meta.CacheAgeSeconds) * time.Second
		parts = append(parts, fmt.Sprintf("cached %s ago", formatDuration(age)))
	}
	return strings.Join(parts, " · ")
}

// formatNumber formats a number with K/M suffixes for readability
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	} else if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	} else {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}

// formatTime formats a time relative to now or as an absolute date
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	if diff < 24*time.Hour {
		if diff < time.Hour {
			minutes := int(diff.Minutes())
			if minutes < 1 {
				return "just now"
			}
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	}

	if diff < 7*24*time.Hour {
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	}

	if t.Year() == now.Year() {
		return t.Format("Jan 2, 15:04")
	}
	return t.Format("Jan 2, 2006")
}

// formatBytes formats a byte count for display.
func formatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
