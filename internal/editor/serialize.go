package editor

import (
	"html"
	"strings"

	"github.com/vdavid/draftmail/internal/markup"
)

// Serialize renders the document with the same styling the draft formatter uses.
// Consecutive bullet paragraphs share one list.
func (d *Document) Serialize() string {
	var b strings.Builder
	b.WriteString(markup.ContainerOpen)

	inList := false
	for _, blk := range d.blocks {
		if blk.kind == Paragraph && blk.bullet {
			if !inList {
				b.WriteString(markup.ListOpen)
				inList = true
			}
			b.WriteString("<li>")
			writeInline(&b, blk.cells)
			b.WriteString("</li>")
			continue
		}

		if inList {
			b.WriteString(markup.ListClose)
			inList = false
		}

		switch blk.kind {
		case Spacer:
			b.WriteString(markup.Spacer)
		case Paragraph:
			b.WriteString(markup.ParagraphOpen)
			writeInline(&b, blk.cells)
			b.WriteString(markup.ParagraphClose)
		}
	}
	if inList {
		b.WriteString(markup.ListClose)
	}

	b.WriteString(markup.ContainerClose)
	return b.String()
}

// writeInline renders a paragraph's characters, wrapping linked stretches in anchors.
func writeInline(b *strings.Builder, cells []cell) {
	for i := 0; i < len(cells); {
		link := cells[i].link
		j := i
		for j < len(cells) && cells[j].link == link {
			j++
		}

		if link == "" {
			writeMarked(b, cells[i:j])
		} else {
			b.WriteString(`<a href="`)
			b.WriteString(html.EscapeString(link))
			b.WriteString(`">`)
			writeMarked(b, cells[i:j])
			b.WriteString("</a>")
		}
		i = j
	}
}

func writeMarked(b *strings.Builder, cells []cell) {
	for i := 0; i < len(cells); {
		if cells[i].r == hardBreak {
			b.WriteString(markup.LineBreak)
			i++
			continue
		}

		marks := cells[i].marks
		j := i
		var text strings.Builder
		for j < len(cells) && cells[j].r != hardBreak && cells[j].marks == marks {
			text.WriteRune(cells[j].r)
			j++
		}

		if marks&Bold != 0 {
			b.WriteString("<strong>")
		}
		if marks&Italic != 0 {
			b.WriteString("<em>")
		}
		b.WriteString(html.EscapeString(text.String()))
		if marks&Italic != 0 {
			b.WriteString("</em>")
		}
		if marks&Bold != 0 {
			b.WriteString("</strong>")
		}
		i = j
	}
}
