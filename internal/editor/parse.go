package editor

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parse reads an HTML fragment into blocks. Unknown inline elements pass their
// text through; scripts, styles and comments are dropped.
func parse(markup string) ([]block, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content: %w", err)
	}

	p := &parser{}
	for _, n := range nodes {
		p.walk(n, 0)
	}
	p.flush()
	return p.blocks, nil
}

type parser struct {
	blocks []block
	cur    *block
	bullet bool
	// link is the href of the enclosing anchor, "" outside links and for unsafe targets.
	link string
}

func (p *parser) walk(n *html.Node, marks Mark) {
	switch n.Type {
	case html.TextNode:
		p.text(n.Data, marks)
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Head, atom.Title, atom.Template, atom.Iframe, atom.Object, atom.Noscript:
		return
	case atom.Br:
		p.lineBreak()
		return
	case atom.Strong, atom.B:
		marks |= Bold
	case atom.Em, atom.I:
		marks |= Italic
	case atom.A:
		saved := p.link
		p.link = safeHref(attr(n, "href"))
		p.children(n, marks)
		p.link = saved
		return
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Blockquote, atom.Pre:
		p.flush()
		p.open()
		p.children(n, marks)
		p.flush()
		return
	case atom.Ul, atom.Ol:
		p.flush()
		saved := p.bullet
		p.bullet = true
		p.children(n, marks)
		p.flush()
		p.bullet = saved
		return
	case atom.Li:
		p.flush()
		saved := p.bullet
		p.bullet = true
		before := len(p.blocks)
		p.children(n, marks)
		p.flush()
		if len(p.blocks) == before {
			p.blocks = append(p.blocks, block{kind: Paragraph, bullet: true})
		}
		p.bullet = saved
		return
	case atom.Div:
		if isSpacer(n) {
			p.flush()
			p.blocks = append(p.blocks, block{kind: Spacer})
			return
		}
		p.flush()
		p.children(n, marks)
		p.flush()
		return
	case atom.Section, atom.Article, atom.Header, atom.Footer, atom.Main, atom.Table, atom.Tbody, atom.Tr, atom.Td, atom.Th:
		p.flush()
		p.children(n, marks)
		p.flush()
		return
	}

	p.children(n, marks)
}

func (p *parser) children(n *html.Node, marks Mark) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, marks)
	}
}

func (p *parser) open() {
	p.cur = &block{kind: Paragraph, bullet: p.bullet}
}

// flush closes the current paragraph, dropping trailing collapsed whitespace.
func (p *parser) flush() {
	if p.cur == nil {
		return
	}
	p.trimTrailingSpace()
	p.blocks = append(p.blocks, *p.cur)
	p.cur = nil
}

// text appends character data using HTML whitespace collapsing: runs become one
// space, and spaces never start a paragraph or follow a line break.
func (p *parser) text(data string, marks Mark) {
	for _, r := range data {
		if isHTMLSpace(r) {
			if p.cur == nil || len(p.cur.cells) == 0 {
				continue
			}
			if last := p.cur.cells[len(p.cur.cells)-1].r; last == ' ' || last == hardBreak {
				continue
			}
			p.cur.cells = append(p.cur.cells, cell{r: ' ', marks: marks, link: p.link})
			continue
		}

		if p.cur == nil {
			p.open()
		}
		p.cur.cells = append(p.cur.cells, cell{r: r, marks: marks, link: p.link})
	}
}

func (p *parser) lineBreak() {
	if p.cur == nil {
		p.open()
	}
	p.trimTrailingSpace()
	p.cur.cells = append(p.cur.cells, cell{r: hardBreak})
}

func (p *parser) trimTrailingSpace() {
	cells := p.cur.cells
	for len(cells) > 0 && cells[len(cells)-1].r == ' ' {
		cells = cells[:len(cells)-1]
	}
	p.cur.cells = cells
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// isSpacer reports whether a div has no content at all.
func isSpacer(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.CommentNode:
			continue
		case html.TextNode:
			if strings.TrimFunc(c.Data, isHTMLSpace) == "" {
				continue
			}
		}
		return false
	}
	return true
}

func isHTMLSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}
