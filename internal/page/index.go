package page

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/COMEONSOM/stargrid/internal/profile"
)

// Card is one indexed card element.
type Card struct {
	ID string

	// Index is the card's original position within its segment,
	// recorded at first discovery and stable across reorders.
	Index int

	URL     string
	JobType string

	Segment *Segment
	Node    *html.Node

	// Control is the card's star toggle, nil when the markup has none.
	Control *html.Node
}

// Segment is one indexed grid container.
type Segment struct {
	ID   string
	Node *html.Node

	// Cards in discovery (document) order, not current DOM order.
	Cards []*Card
}

// IndexStats reports what BuildIndex found and fixed up. The engine
// logs anything non-zero in the malformed fields.
type IndexStats struct {
	Segments           int
	Cards              int
	AssignedCardIDs    int
	AssignedSegmentIDs int

	// OrphanCards counts card elements outside any segment; they are
	// not indexed and never reordered.
	OrphanCards int

	// DuplicateCards and DuplicateSegments list explicit identifiers
	// that appeared twice. Later occurrences are skipped.
	DuplicateCards    []string
	DuplicateSegments []string
}

// Index is the engine's view of a document's cards and segments.
type Index struct {
	doc  *Document
	prof *profile.Profile

	segs     []*Segment
	all      []*Card // every indexed card, document order
	segByID  map[string]*Segment
	cardByID map[string]*Card

	Stats IndexStats
}

// BuildIndex discovers segments and cards and assigns the identifiers
// the rest of the engine works with.
//
// Identifier assignment is idempotent: identifiers and original
// indices already present on the nodes are never reassigned, so
// re-indexing a live document (after cards were added or reordered) is
// safe. Derived segment identifiers are NFKC-folded, lowercased,
// whitespace-collapsed tokens made unique with ordinal suffixes; card
// identifiers come from a document-wide card_N counter in document
// order.
func BuildIndex(doc *Document, prof *profile.Profile) *Index {
	ix := &Index{
		doc:      doc,
		prof:     prof,
		segByID:  map[string]*Segment{},
		cardByID: map[string]*Card{},
	}

	ix.discover()
	ix.assignSegmentIDs()
	ix.assignCardIDs()
	ix.assignOriginalIndices()

	ix.Stats.Segments = len(ix.segs)
	ix.Stats.Cards = len(ix.all)
	return ix
}

// discover walks the tree once, collecting segments in document order
// and attaching each card to its nearest enclosing segment.
func (ix *Index) discover() {
	var visit func(n *html.Node, enclosing *Segment)
	visit = func(n *html.Node, enclosing *Segment) {
		current := enclosing
		if isElement(n) {
			switch {
			case hasAnyClass(n, ix.prof.Segments.Classes):
				seg := &Segment{Node: n}
				ix.segs = append(ix.segs, seg)
				current = seg
			case hasAnyClass(n, ix.prof.Cards.Classes):
				if current == nil {
					ix.Stats.OrphanCards++
				} else {
					card := &Card{Node: n, Segment: current}
					card.URL, _ = Attr(n, ix.prof.Cards.URLAttr)
					card.JobType, _ = Attr(n, ix.prof.Cards.JobAttr)
					card.Control = findControl(n, ix.prof.Control.Class)
					current.Cards = append(current.Cards, card)
					ix.all = append(ix.all, card)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c, current)
		}
	}
	visit(ix.doc.root, nil)
}

// findControl returns the first descendant carrying the control class.
func findControl(card *html.Node, class string) *html.Node {
	var found *html.Node
	for c := card.FirstChild; c != nil && found == nil; c = c.NextSibling {
		walk(c, func(n *html.Node) bool {
			if found != nil {
				return false
			}
			if isElement(n) && HasClass(n, class) {
				found = n
				return false
			}
			return true
		})
	}
	return found
}

func (ix *Index) assignSegmentIDs() {
	used := map[string]bool{}

	// Explicit identifiers first, so derived ones can never collide
	// with an identifier appearing later in the document.
	dropped := map[*Segment]bool{}
	kept := ix.segs[:0]
	for _, seg := range ix.segs {
		id, ok := Attr(seg.Node, ix.prof.Segments.IDAttr)
		if !ok || id == "" {
			kept = append(kept, seg)
			continue
		}
		if used[id] {
			ix.Stats.DuplicateSegments = append(ix.Stats.DuplicateSegments, id)
			dropped[seg] = true
			continue
		}
		seg.ID = id
		used[id] = true
		ix.segByID[id] = seg
		kept = append(kept, seg)
	}
	ix.segs = kept

	// Cards of a dropped segment drop with it.
	if len(dropped) > 0 {
		all := ix.all[:0]
		for _, card := range ix.all {
			if !dropped[card.Segment] {
				all = append(all, card)
			}
		}
		ix.all = all
	}

	for _, seg := range ix.segs {
		if seg.ID != "" {
			continue
		}
		token := deriveSegmentToken(seg.Node)
		id := token
		for ordinal := 2; used[id]; ordinal++ {
			id = fmt.Sprintf("%s_%d", token, ordinal)
		}
		seg.ID = id
		used[id] = true
		ix.segByID[id] = seg
		SetAttr(seg.Node, ix.prof.Segments.IDAttr, id)
		ix.Stats.AssignedSegmentIDs++
	}
}

// deriveSegmentToken picks the raw naming source for a segment: its id
// attribute, else its class list, else a constant.
func deriveSegmentToken(n *html.Node) string {
	if id, ok := Attr(n, "id"); ok {
		if token := normalizeToken(id); token != "" {
			return token
		}
	}
	if classes, ok := Attr(n, "class"); ok {
		if token := normalizeToken(classes); token != "" {
			return token
		}
	}
	return "segment"
}

// normalizeToken folds a raw name to the persisted identifier form:
// NFKC, lowercase, whitespace runs collapsed to underscores. Persisted
// snapshots key on these tokens, so the fold must stay stable.
func normalizeToken(raw string) string {
	folded := strings.ToLower(norm.NFKC.String(raw))
	return strings.Join(strings.Fields(folded), "_")
}

func (ix *Index) assignCardIDs() {
	used := map[string]bool{}
	skipped := map[*Card]bool{}

	// Explicit identifiers first, in document order, first claim wins.
	for _, card := range ix.all {
		id, ok := Attr(card.Node, ix.prof.Cards.IDAttr)
		if !ok || id == "" {
			continue
		}
		if used[id] {
			ix.Stats.DuplicateCards = append(ix.Stats.DuplicateCards, id)
			skipped[card] = true
			continue
		}
		card.ID = id
		used[id] = true
		ix.cardByID[id] = card
	}
	if len(skipped) > 0 {
		ix.prune(skipped)
	}

	// New cards number from a document-wide counter, skipping over
	// identifiers a previous pass already handed out.
	counter := 1
	for _, card := range ix.all {
		if card.ID != "" {
			continue
		}
		var id string
		for {
			id = fmt.Sprintf("card_%d", counter)
			counter++
			if !used[id] {
				break
			}
		}
		card.ID = id
		used[id] = true
		ix.cardByID[id] = card
		SetAttr(card.Node, ix.prof.Cards.IDAttr, id)
		ix.Stats.AssignedCardIDs++
	}
}

// prune drops skipped cards from the index, both the flat list and
// their segments' card lists.
func (ix *Index) prune(skipped map[*Card]bool) {
	all := ix.all[:0]
	for _, card := range ix.all {
		if !skipped[card] {
			all = append(all, card)
		}
	}
	ix.all = all

	for _, seg := range ix.segs {
		kept := seg.Cards[:0]
		for _, card := range seg.Cards {
			if !skipped[card] {
				kept = append(kept, card)
			}
		}
		seg.Cards = kept
	}
}

// assignOriginalIndices gives every card its stable position within
// its segment. Cards indexed on a previous pass keep their recorded
// value; cards new to the document slot in after the highest existing
// index, in document order.
func (ix *Index) assignOriginalIndices() {
	for _, seg := range ix.segs {
		next := 0
		var unindexed []*Card
		for _, card := range seg.Cards {
			raw, ok := Attr(card.Node, ix.prof.Cards.IndexAttr)
			if ok {
				if idx, err := strconv.Atoi(raw); err == nil && idx >= 0 {
					card.Index = idx
					if idx >= next {
						next = idx + 1
					}
					continue
				}
			}
			unindexed = append(unindexed, card)
		}
		for _, card := range unindexed {
			card.Index = next
			SetAttr(card.Node, ix.prof.Cards.IndexAttr, strconv.Itoa(next))
			next++
		}
	}
}

// Card looks up a card by identifier.
func (ix *Index) Card(id string) (*Card, bool) {
	c, ok := ix.cardByID[id]
	return c, ok
}

// Segment looks up a segment by identifier.
func (ix *Index) Segment(id string) (*Segment, bool) {
	s, ok := ix.segByID[id]
	return s, ok
}

// Segments returns all segments in document order.
func (ix *Index) Segments() []*Segment {
	return ix.segs
}

// CardOrder returns segID's card identifiers in current DOM order,
// which after reorders differs from discovery order.
func (ix *Index) CardOrder(segID string) ([]string, error) {
	seg, ok := ix.segByID[segID]
	if !ok {
		return nil, fmt.Errorf("unknown segment %q", segID)
	}
	var order []string
	for _, card := range ix.domOrder(seg) {
		order = append(order, card.ID)
	}
	return order, nil
}

// domOrder walks the segment subtree and returns its own cards in
// current document order. Cards of nested segments are excluded.
func (ix *Index) domOrder(seg *Segment) []*Card {
	var cards []*Card
	walk(seg.Node, func(n *html.Node) bool {
		if !isElement(n) {
			return true
		}
		if id, ok := Attr(n, ix.prof.Cards.IDAttr); ok {
			if card, known := ix.cardByID[id]; known && card.Segment == seg && card.Node == n {
				cards = append(cards, card)
			}
		}
		return true
	})
	return cards
}
