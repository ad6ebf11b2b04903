// Package markup holds the HTML vocabulary shared by the draft formatter and the
// rich-text editor, and the plain-text derivation used for multipart messages.
package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Inline styles of the email body. The formatter and the editor serializer emit
// exactly these so that a formatted draft survives an editor round trip unchanged.
const (
	ContainerStyle = "font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto;"
	ParagraphStyle = "margin: 0 0 16px 0;"
	SpacerStyle    = "height: 16px;"
	ListStyle      = "margin: 0 0 16px 0; padding-left: 24px;"

	ContainerOpen  = `<div style="` + ContainerStyle + `">`
	ContainerClose = "</div>"
	ParagraphOpen  = `<p style="` + ParagraphStyle + `">`
	ParagraphClose = "</p>"
	Spacer         = `<div style="` + SpacerStyle + `"></div>`
	ListOpen       = `<ul style="` + ListStyle + `">`
	ListClose      = "</ul>"
	LineBreak      = "<br/>"
)

// maxEntityLength bounds the lookahead when deciding whether an ampersand starts an entity.
const maxEntityLength = 40

// PlainText derives the plain-text alternative of an HTML body. Block-level tags
// separate words, other tags are removed, entities are decoded and whitespace is
// collapsed to single spaces.
//
// Decoded text that would read as markup on a second pass stays encoded: a "<"
// that would open a tag becomes "&lt;" and an "&" that would start an entity
// becomes "&amp;". This keeps PlainText(PlainText(s)) == PlainText(s).
func PlainText(htmlBody string) string {
	var sb strings.Builder
	skipDepth := 0

	z := html.NewTokenizer(strings.NewReader(htmlBody))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return reencode(strings.Join(strings.Fields(sb.String()), " "))
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				skipDepth++
			}
			if isBlock(a) {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style) && skipDepth > 0 {
				skipDepth--
			}
			if isBlock(a) {
				sb.WriteByte(' ')
			}
		}
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Li, atom.Ul, atom.Ol,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Table, atom.Tr, atom.Td, atom.Th:
		return true
	}
	return false
}

// reencode escapes the characters of decoded text that the tokenizer would
// otherwise treat as markup.
func reencode(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c == '<' && i+1 < len(text) && opensTag(text[i+1]):
			sb.WriteString("&lt;")
		case c == '&' && formsEntity(text[i:]):
			sb.WriteString("&amp;")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func opensTag(c byte) bool {
	return c == '/' || c == '!' || c == '?' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// formsEntity reports whether s, which starts with "&", would be decoded as a
// character reference.
func formsEntity(s string) bool {
	end := 1
	for end < len(s) && end < maxEntityLength && isEntityByte(s[end]) {
		end++
	}
	if end < len(s) && s[end] == ';' {
		end++
	}
	seg := s[:end]
	return html.UnescapeString(seg) != seg
}

func isEntityByte(c byte) bool {
	return c == '#' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
