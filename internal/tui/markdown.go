package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// The parser configuration never changes, so one instance is shared.
var (
	markdownParserInstance goldmark.Markdown
	markdownParserOnce     sync.Once
)

func getMarkdownParser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParserInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownParserInstance
}

// RenderMarkdown renders an insight document as styled terminal text wrapped
// to width. Partial documents (mid-stream) render fine: goldmark treats an
// unterminated construct as plain text.
func RenderMarkdown(input string, width int) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	if width < 20 {
		width = 20
	}
	source := []byte(input)
	document := getMarkdownParser().Parser().Parse(text.NewReader(source))

	r := &markdownRenderer{source: source, width: width}
	_ = ast.Walk(document, r.walk)
	return strings.TrimRight(r.output.String(), "\n")
}

type listState struct {
	ordered bool
	next    int
	tight   bool
}

// markdownRenderer walks the AST, collecting inline text per block and
// wrapping it when the block closes.
type markdownRenderer struct {
	source []byte
	width  int

	output   strings.Builder
	trailing int // newlines at the end of output

	inline      strings.Builder
	boldCount   int
	italicCount int

	lists  []listState
	bullet string // prefix for the next emitted line only
	quotes int

	table [][]string
	row   []string
}

func (r *markdownRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if !entering {
			style := markdownHeadingStyle
			if node.Level == 1 {
				style = markdownTitleStyle
			}
			r.flushBlock(style.Render)
			r.blank()
		}

	case *ast.Paragraph:
		if !entering {
			r.flushBlock(nil)
			if !r.inTightList() {
				r.blank()
			}
		}

	case *ast.TextBlock:
		if !entering {
			r.flushBlock(nil)
		}

	case *ast.Text:
		if entering {
			r.writeInline(string(node.Segment.Value(r.source)))
			switch {
			case node.HardLineBreak():
				r.inline.WriteString("\n")
			case node.SoftLineBreak():
				r.inline.WriteString(" ")
			}
		}

	case *ast.String:
		if entering {
			r.writeInline(string(node.Value))
		}

	case *ast.AutoLink:
		if entering {
			r.writeInline(string(node.URL(r.source)))
		}

	case *ast.Emphasis:
		delta := 1
		if !entering {
			delta = -1
		}
		if node.Level >= 2 {
			r.boldCount += delta
		} else {
			r.italicCount += delta
		}

	case *ast.CodeSpan:
		if entering {
			var b strings.Builder
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					b.Write(t.Segment.Value(r.source))
				}
			}
			r.inline.WriteString(markdownCodeStyle.Render(b.String()))
			return ast.WalkSkipChildren, nil
		}

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				segment := lines.At(i)
				line := strings.TrimRight(string(segment.Value(r.source)), "\n")
				r.writeLine(r.prefix() + "  " + markdownCodeStyle.Render(line))
			}
			r.blank()
			return ast.WalkSkipChildren, nil
		}

	case *ast.List:
		if entering {
			r.lists = append(r.lists, listState{ordered: node.IsOrdered(), next: node.Start, tight: node.IsTight})
		} else {
			r.lists = r.lists[:len(r.lists)-1]
			if len(r.lists) == 0 {
				r.blank()
			}
		}

	case *ast.ListItem:
		if entering && len(r.lists) > 0 {
			top := &r.lists[len(r.lists)-1]
			if top.ordered {
				r.bullet = fmt.Sprintf("%d. ", top.next)
				top.next++
			} else {
				r.bullet = "• "
			}
		}

	case *ast.Blockquote:
		if entering {
			r.quotes++
		} else {
			r.quotes--
			r.blank()
		}

	case *ast.ThematicBreak:
		if entering {
			r.writeLine(markdownRuleStyle.Render(strings.Repeat("─", min(r.width, 40))))
			r.blank()
		}

	case *extast.Table:
		if entering {
			r.table = nil
		} else {
			r.renderTable()
			r.blank()
		}

	case *extast.TableHeader, *extast.TableRow:
		if entering {
			r.row = nil
		} else {
			r.table = append(r.table, r.row)
		}

	case *extast.TableCell:
		if !entering {
			r.row = append(r.row, strings.TrimSpace(r.inline.String()))
			r.inline.Reset()
		}
	}
	return ast.WalkContinue, nil
}

func (r *markdownRenderer) inTightList() bool {
	return len(r.lists) > 0 && r.lists[len(r.lists)-1].tight
}

func (r *markdownRenderer) writeInline(s string) {
	switch {
	case r.boldCount > 0:
		s = markdownBoldStyle.Render(s)
	case r.italicCount > 0:
		s = markdownItalicStyle.Render(s)
	}
	r.inline.WriteString(s)
}

// prefix is the quote bars plus list nesting indentation.
func (r *markdownRenderer) prefix() string {
	p := strings.Repeat(markdownQuoteStyle.Render("│ "), r.quotes)
	if len(r.lists) > 1 {
		p += strings.Repeat("  ", len(r.lists)-1)
	}
	return p
}

func (r *markdownRenderer) flushBlock(style func(...string) string) {
	content := r.inline.String()
	r.inline.Reset()
	if content == "" {
		return
	}

	first := r.prefix()
	rest := first
	if r.bullet != "" {
		first += r.bullet
		rest += strings.Repeat(" ", lipgloss.Width(r.bullet))
		r.bullet = ""
	} else if len(r.lists) > 0 {
		rest += "   "
		first = rest
	}

	avail := r.width - lipgloss.Width(first)
	if avail < 10 {
		avail = 10
	}
	for i, line := range strings.Split(wordwrap.String(content, avail), "\n") {
		if style != nil {
			line = style(line)
		}
		if i == 0 {
			r.writeLine(first + line)
		} else {
			r.writeLine(rest + line)
		}
	}
}

func (r *markdownRenderer) renderTable() {
	if len(r.table) == 0 {
		return
	}
	columns := 0
	for _, row := range r.table {
		columns = max(columns, len(row))
	}
	widths := make([]int, columns)
	for _, row := range r.table {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	format := func(row []string) string {
		cells := make([]string, columns)
		for i := range cells {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		return strings.TrimRight(strings.Join(cells, " │ "), " ")
	}

	prefix := r.prefix()
	r.writeLine(prefix + markdownBoldStyle.Render(format(r.table[0])))
	separators := make([]string, columns)
	for i, w := range widths {
		separators[i] = strings.Repeat("─", w)
	}
	r.writeLine(prefix + markdownRuleStyle.Render(strings.Join(separators, "─┼─")))
	for _, row := range r.table[1:] {
		r.writeLine(prefix + format(row))
	}
	r.table = nil
}

func (r *markdownRenderer) writeLine(line string) {
	r.output.WriteString(line)
	r.output.WriteString("\n")
	r.trailing = 1
}

// blank ensures exactly one empty line separates blocks.
func (r *markdownRenderer) blank() {
	if r.output.Len() == 0 || r.trailing >= 2 {
		return
	}
	r.output.WriteString("\n")
	r.trailing++
}
