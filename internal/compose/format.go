package compose

import (
	"html"
	"strings"

	"github.com/vdavid/draftmail/internal/markup"
)

// ParagraphSeparator splits model output into paragraphs.
const ParagraphSeparator = "\n\n"

// FormatDraft converts raw model text into the styled HTML email body.
//
// Every ParagraphSeparator-delimited paragraph becomes exactly one block, in order:
// a fixed-height spacer when the paragraph is blank, otherwise a paragraph whose
// single newlines are rendered as line breaks. The text is escaped first, so
// nothing the model writes is ever interpreted as markup.
func FormatDraft(text string) string {
	paragraphs := strings.Split(text, ParagraphSeparator)

	var b strings.Builder
	b.WriteString(markup.ContainerOpen)
	for _, para := range paragraphs {
		if strings.TrimSpace(para) == "" {
			b.WriteString(markup.Spacer)
			continue
		}

		escaped := html.EscapeString(strings.TrimSpace(para))
		b.WriteString(markup.ParagraphOpen)
		b.WriteString(strings.ReplaceAll(escaped, "\n", markup.LineBreak))
		b.WriteString(markup.ParagraphClose)
	}
	b.WriteString(markup.ContainerClose)

	return b.String()
}
