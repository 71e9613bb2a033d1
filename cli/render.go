// Terminal rendering of turns.
//
// Information Hiding:
// - Color palette and lipgloss styles
// - Live streaming of text versus end-of-turn summaries
// - JSON pretty-printing of tool parameters and results

package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/richinex/chatkit/accumulator"
	"github.com/richinex/chatkit/chunk"
	jsonutil "github.com/richinex/chatkit/internal/json"
	"github.com/richinex/chatkit/model"
	"github.com/richinex/chatkit/storage"
)

// Color palette.
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	thinkingBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(mutedColor).
				Padding(0, 1)
)

const maxParamLen = 400

// statusStyle picks a style for a thinking item status.
func statusStyle(status model.ThinkingStatus) lipgloss.Style {
	switch status {
	case model.ThinkingCompleted:
		return successStyle
	case model.ThinkingInProgress:
		return warningStyle
	case model.ThinkingError:
		return errorStyle
	default:
		return mutedStyle
	}
}

// Renderer prints a turn as it streams. Use Observe as the turn observer and
// call Finish once the turn returned.
type Renderer struct {
	out          io.Writer
	showThinking bool
	activity     string
	wroteText    bool
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(out io.Writer, showThinking bool) *Renderer {
	return &Renderer{out: out, showThinking: showThinking}
}

// Observe prints streamed text and notable chunks.
func (r *Renderer) Observe(c chunk.Chunk, acc *accumulator.Accumulator) {
	switch c.Type {
	case chunk.TypeText:
		fmt.Fprint(r.out, c.Text)
		if c.Text != "" {
			r.wroteText = true
		}
	case chunk.TypeAnnotation:
		if url := c.MetaOr(chunk.KeyURL, c.Text); url != "" {
			label := "source: " + url
			if title := c.Meta("title"); title != "" {
				label = "source: " + title + " <" + url + ">"
			}
			r.line(mutedStyle.Render(label))
		}
	case chunk.TypeError:
		r.line(errorStyle.Render("Error: " + c.Text))
	}

	if !r.showThinking {
		return
	}
	if activity := acc.CurrentActivity(); activity != "" && activity != r.activity {
		r.activity = activity
		r.line(mutedStyle.Render(activity))
	}
}

// line starts a fresh line if streamed text left the cursor mid-line.
func (r *Renderer) line(s string) {
	if r.wroteText {
		fmt.Fprintln(r.out)
		r.wroteText = false
	}
	fmt.Fprintln(r.out, s)
}

// Finish prints the end-of-turn summary: thinking items, auth prompts and usage.
func (r *Renderer) Finish(acc *accumulator.Accumulator, cancelled bool) {
	if r.wroteText {
		fmt.Fprintln(r.out)
		r.wroteText = false
	}
	if cancelled {
		fmt.Fprintln(r.out, warningStyle.Render("(cancelled)"))
	}
	if r.showThinking {
		if items := acc.Thinking(); len(items) > 0 {
			fmt.Fprintln(r.out, RenderThinking(items))
		}
	}
	if images := acc.Images(); len(images) > 0 {
		fmt.Fprintln(r.out, mutedStyle.Render(fmt.Sprintf("%d image chunk(s) received", len(images))))
	}
	if auth := acc.Auth(); auth.Pending {
		name := auth.ServerName
		if name == "" {
			name = auth.ServerID
		}
		fmt.Fprintln(r.out, warningStyle.Render("Authentication required for "+name))
		if auth.AuthURL != "" {
			fmt.Fprintln(r.out, "  "+auth.AuthURL)
		}
		fmt.Fprintln(r.out, mutedStyle.Render("Authenticate, then type /resend to retry: "+truncateString(auth.PendingMessage, 60)))
	}
	if stats := acc.Statistics(); stats != nil {
		fmt.Fprintln(r.out, RenderStatistics(stats))
	}
	r.activity = ""
}

// RenderThinking formats thinking items in a bordered box.
func RenderThinking(items []model.Thinking) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		switch item.Type {
		case model.ThinkingToolCall:
			fmt.Fprintf(&b, "%s %s %s", titleStyle.Render("tool"), item.ToolName,
				statusStyle(item.Status).Render(string(item.Status)))
			if item.Parameters != "" {
				b.WriteString("\n" + mutedStyle.Render("params: ") + truncateString(jsonutil.Pretty(item.Parameters), maxParamLen))
			}
			if item.Result != "" {
				b.WriteString("\n" + mutedStyle.Render("result: ") + truncateString(jsonutil.Pretty(item.Result), maxParamLen))
			}
			if item.Error != "" {
				b.WriteString("\n" + errorStyle.Render(item.Error))
			}
			if item.Text != "" {
				b.WriteString("\n" + item.Text)
			}
		default:
			fmt.Fprintf(&b, "%s %s", titleStyle.Render("reasoning"), statusStyle(item.Status).Render(string(item.Status)))
			if text := strings.TrimSpace(item.Text); text != "" {
				b.WriteString("\n" + text)
			}
		}
	}
	return thinkingBoxStyle.Render(b.String())
}

// RenderStatistics formats usage as one muted line.
func RenderStatistics(stats *chunk.Statistics) string {
	parts := []string{
		fmt.Sprintf("%s via %s", stats.Model, stats.Processor),
		fmt.Sprintf("in %d", stats.InputTokens),
		fmt.Sprintf("out %d", stats.OutputTokens),
	}
	if len(stats.ToolUses) > 0 {
		names := make([]string, 0, len(stats.ToolUses))
		for name := range stats.ToolUses {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s x%d", name, stats.ToolUses[name]))
		}
	}
	return mutedStyle.Render(strings.Join(parts, " | "))
}

// RenderModels lists models with the default marked.
func RenderModels(models []model.AIModel, defaultID string) string {
	var b strings.Builder
	for _, m := range models {
		marker := "  "
		if m.ID == defaultID {
			marker = successStyle.Render("* ")
		}
		fmt.Fprintf(&b, "%s%-32s %s\n", marker, m.ID, mutedStyle.Render(m.Text))
	}
	return b.String()
}

// RenderThreads lists stored threads, newest first.
func RenderThreads(threads []storage.ThreadSummary) string {
	if len(threads) == 0 {
		return mutedStyle.Render("No threads stored.") + "\n"
	}
	var b strings.Builder
	for _, t := range threads {
		state := string(t.State)
		if t.State == model.ThreadError {
			state = errorStyle.Render(state)
		}
		fmt.Fprintf(&b, "%s  %-40s %-8s %3d msgs  %s  %s\n",
			t.ThreadID, truncateString(t.Title, 40), state, t.MessageCount,
			mutedStyle.Render(t.AIModel), mutedStyle.Render(t.UpdatedAt.Local().Format("2006-01-02 15:04")))
	}
	return b.String()
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
