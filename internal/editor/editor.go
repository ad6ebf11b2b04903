// Package editor holds the rich-text document a user edits between draft
// generation and dispatch.
//
// The document is a flat sequence of blocks: paragraphs (optionally marked as
// bullet-list items) and fixed-height spacers. A paragraph is a sequence of
// characters, each carrying its own formatting marks; a hard line break is a
// character of its own. After the initial LoadContent, the document changes only
// through discrete commands.
package editor

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// Editor is the capability set the rest of the application relies on.
// Alternate editor implementations satisfy the same contract.
type Editor interface {
	// LoadContent replaces the whole document with the parsed markup.
	LoadContent(markup string) error
	ToggleBold()
	ToggleItalic()
	ToggleBulletList()
	// IsEmpty reports whether the document has no user-visible content.
	IsEmpty() bool
	// Serialize returns the document as an HTML fragment.
	Serialize() string
	// Clear resets to an empty document.
	Clear()
}

// CursorEditor is an Editor that can also be driven by a selection and typed text.
type CursorEditor interface {
	Editor
	Select(sel Selection) error
	Selection() Selection
	InsertText(text string)
	SplitBlock()
	// SetLink links the selected text to href. An empty href removes links.
	SetLink(href string) error
}

var (
	// ErrInvalidSelection is returned when a selection points outside the document.
	ErrInvalidSelection = errors.New("selection is outside the document")
	// ErrUnsafeLink is returned for link targets other than http, https and mailto URLs.
	ErrUnsafeLink = errors.New("links must be http, https or mailto URLs")
)

// Mark is a set of inline formatting marks.
type Mark uint8

const (
	Bold Mark = 1 << iota
	Italic
)

// BlockKind distinguishes text paragraphs from spacers.
type BlockKind int

const (
	Paragraph BlockKind = iota
	Spacer
)

const hardBreak = '\n'

// Position addresses a gap between characters: Offset runes into block Block.
type Position struct {
	Block  int `json:"block"`
	Offset int `json:"offset"`
}

func (p Position) before(o Position) bool {
	return p.Block < o.Block || (p.Block == o.Block && p.Offset < o.Offset)
}

// Selection is the range between Anchor and Head. Anchor may come after Head.
type Selection struct {
	Anchor Position `json:"anchor"`
	Head   Position `json:"head"`
}

// Collapsed reports whether the selection is a bare cursor.
func (s Selection) Collapsed() bool {
	return s.Anchor == s.Head
}

func (s Selection) ordered() (from, to Position) {
	if s.Head.before(s.Anchor) {
		return s.Head, s.Anchor
	}
	return s.Anchor, s.Head
}

// Run is a maximal stretch of text sharing the same marks and link. Hard breaks are "\n".
type Run struct {
	Text  string `json:"text"`
	Marks Mark   `json:"marks,omitempty"`
	Link  string `json:"link,omitempty"`
}

// Block is a read-only view of one document block.
type Block struct {
	Kind   BlockKind `json:"kind"`
	Bullet bool      `json:"bullet,omitempty"`
	Runs   []Run     `json:"runs,omitempty"`
}

type cell struct {
	r     rune
	marks Mark
	link  string
}

type block struct {
	kind   BlockKind
	bullet bool
	cells  []cell
}

// Document is the default CursorEditor. It is not safe for concurrent use.
type Document struct {
	blocks []block
	sel    Selection
	// pending holds marks toggled at a collapsed cursor, applied to the next insert.
	pending *Mark
}

var _ CursorEditor = (*Document)(nil)

// New returns an empty document.
func New() *Document {
	d := &Document{}
	d.Clear()
	return d
}

// LoadContent replaces the document with the parsed markup and puts the cursor at the start.
func (d *Document) LoadContent(markup string) error {
	blocks, err := parse(markup)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		blocks = []block{{kind: Paragraph}}
	}

	d.blocks = blocks
	d.sel = Selection{}
	d.pending = nil
	return nil
}

// Clear leaves one empty paragraph with the cursor in it.
func (d *Document) Clear() {
	d.blocks = []block{{kind: Paragraph}}
	d.sel = Selection{}
	d.pending = nil
}

func (d *Document) IsEmpty() bool {
	for _, b := range d.blocks {
		for _, c := range b.cells {
			if c.r != hardBreak && !unicode.IsSpace(c.r) {
				return false
			}
		}
	}
	return true
}

// Select moves the selection. Both ends must lie inside the document.
func (d *Document) Select(sel Selection) error {
	for _, p := range []Position{sel.Anchor, sel.Head} {
		if p.Block < 0 || p.Block >= len(d.blocks) || p.Offset < 0 || p.Offset > len(d.blocks[p.Block].cells) {
			return fmt.Errorf("%w: block %d offset %d", ErrInvalidSelection, p.Block, p.Offset)
		}
	}

	d.sel = sel
	d.pending = nil
	return nil
}

func (d *Document) Selection() Selection {
	return d.sel
}

// Blocks returns a snapshot of the document structure.
func (d *Document) Blocks() []Block {
	out := make([]Block, 0, len(d.blocks))
	for _, b := range d.blocks {
		view := Block{Kind: b.kind, Bullet: b.bullet}
		for _, c := range b.cells {
			n := len(view.Runs)
			if n > 0 && view.Runs[n-1].Marks == c.marks && view.Runs[n-1].Link == c.link {
				view.Runs[n-1].Text += string(c.r)
				continue
			}
			view.Runs = append(view.Runs, Run{Text: string(c.r), Marks: c.marks, Link: c.link})
		}
		out = append(out, view)
	}
	return out
}

func (d *Document) ToggleBold() {
	d.toggleMark(Bold)
}

func (d *Document) ToggleItalic() {
	d.toggleMark(Italic)
}

// toggleMark removes m from the selection when every character already has it,
// otherwise adds it everywhere. At a collapsed cursor it toggles the pending marks.
func (d *Document) toggleMark(m Mark) {
	if d.sel.Collapsed() {
		marks := d.marksAt(d.sel.Head)
		if d.pending != nil {
			marks = *d.pending
		}
		marks ^= m
		d.pending = &marks
		return
	}

	from, to := d.sel.ordered()
	all, found := true, false
	d.eachCell(from, to, func(c *cell) {
		found = true
		if c.marks&m == 0 {
			all = false
		}
	})
	if !found {
		return
	}

	d.eachCell(from, to, func(c *cell) {
		if all {
			c.marks &^= m
		} else {
			c.marks |= m
		}
	})
}

// SetLink links every selected character to href, or unlinks them when href is
// empty. A collapsed selection is left unchanged.
func (d *Document) SetLink(href string) error {
	href = strings.TrimSpace(href)
	if href != "" {
		href = safeHref(href)
		if href == "" {
			return ErrUnsafeLink
		}
	}

	from, to := d.sel.ordered()
	d.eachCell(from, to, func(c *cell) {
		c.link = href
	})
	return nil
}

// safeHref returns href when it is an absolute http(s) URL with a host or a
// mailto URL with an address, and "" otherwise.
func safeHref(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return ""
		}
	case "mailto":
		if u.Opaque == "" {
			return ""
		}
	default:
		return ""
	}
	return u.String()
}

// ToggleBulletList turns the paragraphs touched by the selection into list items,
// or back into plain paragraphs when all of them already are list items.
func (d *Document) ToggleBulletList() {
	from, to := d.sel.ordered()

	var targets []int
	allBullets := true
	for i := from.Block; i <= to.Block; i++ {
		if d.blocks[i].kind != Paragraph {
			continue
		}
		targets = append(targets, i)
		if !d.blocks[i].bullet {
			allBullets = false
		}
	}

	for _, i := range targets {
		d.blocks[i].bullet = !allBullets
	}
}

// InsertText replaces the selection with text. A "\n" inserts a hard line break.
// An empty text deletes the selection.
func (d *Document) InsertText(text string) {
	from, to := d.sel.ordered()
	marks := d.marksAt(from)
	if d.pending != nil {
		marks = *d.pending
	}
	link := d.linkBetween(from, to)

	d.deleteRange(from, to)

	var inserted []cell
	for _, r := range text {
		switch r {
		case '\r':
			continue
		case hardBreak:
			inserted = append(inserted, cell{r: hardBreak})
		default:
			inserted = append(inserted, cell{r: r, marks: marks, link: link})
		}
	}

	b := &d.blocks[from.Block]
	if len(inserted) > 0 && b.kind == Spacer {
		b.kind = Paragraph
	}
	cells := make([]cell, 0, len(b.cells)+len(inserted))
	cells = append(cells, b.cells[:from.Offset]...)
	cells = append(cells, inserted...)
	cells = append(cells, b.cells[from.Offset:]...)
	b.cells = cells

	cursor := Position{Block: from.Block, Offset: from.Offset + len(inserted)}
	d.sel = Selection{Anchor: cursor, Head: cursor}
	d.pending = nil
}

// SplitBlock replaces the selection with a paragraph boundary, like pressing Enter.
func (d *Document) SplitBlock() {
	from, to := d.sel.ordered()
	d.deleteRange(from, to)

	current := d.blocks[from.Block]
	head := block{kind: current.kind, bullet: current.bullet, cells: append([]cell(nil), current.cells[:from.Offset]...)}
	tail := block{kind: Paragraph, bullet: current.bullet, cells: append([]cell(nil), current.cells[from.Offset:]...)}

	blocks := make([]block, 0, len(d.blocks)+1)
	blocks = append(blocks, d.blocks[:from.Block]...)
	blocks = append(blocks, head, tail)
	blocks = append(blocks, d.blocks[from.Block+1:]...)
	d.blocks = blocks

	cursor := Position{Block: from.Block + 1}
	d.sel = Selection{Anchor: cursor, Head: cursor}
	d.pending = nil
}

// deleteRange removes the characters between from and to, merging the end blocks.
func (d *Document) deleteRange(from, to Position) {
	if from == to {
		return
	}

	first := &d.blocks[from.Block]
	last := d.blocks[to.Block]

	cells := make([]cell, 0, from.Offset+len(last.cells)-to.Offset)
	cells = append(cells, first.cells[:from.Offset]...)
	cells = append(cells, last.cells[to.Offset:]...)
	first.cells = cells
	if len(cells) > 0 {
		first.kind = Paragraph
	}

	if to.Block > from.Block {
		d.blocks = append(d.blocks[:from.Block+1], d.blocks[to.Block+1:]...)
	}
}

// eachCell visits every non-break character between from and to.
func (d *Document) eachCell(from, to Position, fn func(c *cell)) {
	for bi := from.Block; bi <= to.Block; bi++ {
		cells := d.blocks[bi].cells
		start, end := 0, len(cells)
		if bi == from.Block {
			start = from.Offset
		}
		if bi == to.Block {
			end = to.Offset
		}
		for i := start; i < end; i++ {
			if cells[i].r == hardBreak {
				continue
			}
			fn(&cells[i])
		}
	}
}

// marksAt returns the marks new text typed at p inherits.
func (d *Document) marksAt(p Position) Mark {
	cells := d.blocks[p.Block].cells
	switch {
	case p.Offset > 0:
		return cells[p.Offset-1].marks
	case len(cells) > 0:
		return cells[0].marks
	default:
		return 0
	}
}

// linkBetween returns the link text replacing the range from..to inherits: the
// link of the surrounding characters when both sides share it. Typing at the edge
// of a link does not extend it.
func (d *Document) linkBetween(from, to Position) string {
	before := d.blocks[from.Block].cells
	after := d.blocks[to.Block].cells
	if from.Offset == 0 || to.Offset >= len(after) {
		return ""
	}

	prev, next := before[from.Offset-1], after[to.Offset]
	if prev.link != "" && prev.link == next.link {
		return prev.link
	}
	return ""
}
