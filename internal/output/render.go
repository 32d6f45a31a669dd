package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/x/term"
)

// Renderer handles styled terminal output.
type Renderer struct {
	width  int
	styled bool
	locale Locale

	Summary lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Warning lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
}

// NewRenderer creates a renderer. Styling is enabled when writing to a TTY,
// or when forceStyled is true, unless NO_COLOR is set.
func NewRenderer(w io.Writer, forceStyled bool, locale Locale) *Renderer {
	width, tty := terminalInfo(w)
	styled := (tty || forceStyled) && os.Getenv("NO_COLOR") == ""

	r := &Renderer{width: width, styled: styled, locale: locale}
	if locale.printer == nil {
		r.locale = NewLocale("")
	}

	if styled {
		r.Summary = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).Bold(true)
		r.Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
		r.Error = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true)
		r.Hint = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Italic(true)
		r.Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaf00"))
		r.Header = lipgloss.NewStyle().Bold(true).Padding(0, 1)
		r.Cell = lipgloss.NewStyle().Padding(0, 1)
	} else {
		r.Summary = lipgloss.NewStyle()
		r.Muted = lipgloss.NewStyle()
		r.Error = lipgloss.NewStyle()
		r.Hint = lipgloss.NewStyle()
		r.Warning = lipgloss.NewStyle()
		r.Header = lipgloss.NewStyle().Padding(0, 1)
		r.Cell = lipgloss.NewStyle().Padding(0, 1)
	}
	return r
}

// terminalInfo returns the terminal width and whether the writer is a TTY.
func terminalInfo(w io.Writer) (width int, isTTY bool) {
	width = 80
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(f.Fd()); err == nil && cols >= 40 {
			width = cols
		}
		isTTY = term.IsTerminal(f.Fd())
	}
	return width, isTTY
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(r.Summary.Render(resp.Summary))
		b.WriteString("\n\n")
	}

	r.renderData(&b, NormalizeData(resp.Data))

	if resp.Warning != "" {
		b.WriteString("\n")
		b.WriteString(r.Warning.Render("Warning: " + resp.Warning))
		b.WriteString("\n")
	}

	if len(resp.Breadcrumbs) > 0 {
		b.WriteString("\n")
		for _, c := range resp.Breadcrumbs {
			b.WriteString(r.Muted.Render(fmt.Sprintf("  %s: %s", c.Description, c.Cmd)))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder
	b.WriteString(r.Error.Render("Error: " + resp.Error))
	b.WriteString("\n")
	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case nil:
	case []any:
		if rows, ok := toMapSlice(d); ok {
			r.renderTable(b, rows)
			return
		}
		for _, item := range d {
			b.WriteString("  " + r.formatCell(item) + "\n")
		}
	case map[string]any:
		r.renderObject(b, d)
	default:
		b.WriteString(r.formatCell(d))
		b.WriteString("\n")
	}
}

func toMapSlice(items []any) ([]map[string]any, bool) {
	if len(items) == 0 {
		return nil, false
	}
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		rows = append(rows, m)
	}
	return rows, true
}

// columnPriority orders well-known columns first.
var columnPriority = map[string]int{
	"slug":   0,
	"title":  1,
	"type":   2,
	"module": 3,
	"order":  4,
}

func (r *Renderer) columns(rows []map[string]any) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.SliceStable(cols, func(i, j int) bool {
		pi, iok := columnPriority[cols[i]]
		pj, jok := columnPriority[cols[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return cols[i] < cols[j]
		}
	})
	return cols
}

func (r *Renderer) renderTable(b *strings.Builder, rows []map[string]any) {
	cols := r.columns(rows)
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = formatHeader(c)
	}

	t := table.New().
		Headers(headers...).
		Border(lipgloss.NormalBorder()).
		BorderTop(false).BorderBottom(false).BorderLeft(false).BorderRight(false).
		BorderColumn(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.Header
			}
			return r.Cell
		})
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = r.formatCell(row[c])
		}
		t.Row(cells...)
	}
	b.WriteString(t.String())
	b.WriteString("\n")
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	keys := make([]string, 0, len(data))
	width := 0
	for k := range data {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		label := r.Muted.Render(fmt.Sprintf("%-*s", width+1, formatHeader(k)+":"))
		b.WriteString(label + " " + r.formatCell(data[k]) + "\n")
	}
}

func formatHeader(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (r *Renderer) formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return "-"
	case string:
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		return r.locale.FormatNumber(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, r.formatCell(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+r.formatCell(v[k]))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}
