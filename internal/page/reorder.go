package page

import (
	"fmt"
	"sort"
)

// Reorder rebuilds segID's physical card order from scratch: the
// starred cards first, in starredOrder (star insertion order), then
// every unstarred card by ascending original index.
//
// starredOrder entries that are not cards of this segment are skipped;
// persisted state may reference cards that no longer exist, and that
// must never break the rest of the ordering.
func (ix *Index) Reorder(segID string, starredOrder []string) error {
	seg, ok := ix.segByID[segID]
	if !ok {
		return fmt.Errorf("unknown segment %q", segID)
	}

	starred := make(map[string]bool, len(starredOrder))
	var target []*Card
	for _, id := range starredOrder {
		card, known := ix.cardByID[id]
		if !known || card.Segment != seg {
			continue
		}
		if starred[id] {
			continue
		}
		starred[id] = true
		target = append(target, card)
	}

	unstarred := make([]*Card, 0, len(seg.Cards))
	for _, card := range seg.Cards {
		if !starred[card.ID] {
			unstarred = append(unstarred, card)
		}
	}
	sort.SliceStable(unstarred, func(i, j int) bool {
		return unstarred[i].Index < unstarred[j].Index
	})
	target = append(target, unstarred...)

	// Re-appending every card in target order realizes the order, the
	// same way a loop of appendChild calls does.
	for _, card := range target {
		moveToEnd(seg, card)
	}
	return nil
}

// RepositionStarred moves a just-starred card to the back of the
// starred block: immediately before the first unstarred card in DOM
// order, or to the segment end when every card is starred.
//
// isStarred must already reflect the new state, the moved card
// included.
func (ix *Index) RepositionStarred(cardID string, isStarred func(cardID string) bool) error {
	card, seg, err := ix.cardInSegment(cardID)
	if err != nil {
		return err
	}
	detach(card)
	for _, c := range ix.domOrder(seg) {
		if !isStarred(c.ID) {
			insertBefore(card, c)
			return nil
		}
	}
	seg.Node.AppendChild(card.Node)
	return nil
}

// RepositionUnstarred moves a just-unstarred card back into the
// unstarred region: scanning the cards after the last starred one in
// DOM order, it lands before the first whose original index exceeds
// its own, or at the segment end. Other unstarred cards never move, so
// their relative order is preserved even when it no longer matches
// original order.
func (ix *Index) RepositionUnstarred(cardID string, isStarred func(cardID string) bool) error {
	card, seg, err := ix.cardInSegment(cardID)
	if err != nil {
		return err
	}
	detach(card)

	scan := ix.domOrder(seg)
	lastStarred := -1
	for i, c := range scan {
		if isStarred(c.ID) {
			lastStarred = i
		}
	}
	for _, c := range scan[lastStarred+1:] {
		if c.Index > card.Index {
			insertBefore(card, c)
			return nil
		}
	}
	seg.Node.AppendChild(card.Node)
	return nil
}

func (ix *Index) cardInSegment(cardID string) (*Card, *Segment, error) {
	card, ok := ix.cardByID[cardID]
	if !ok {
		return nil, nil, fmt.Errorf("unknown card %q", cardID)
	}
	return card, card.Segment, nil
}

// detach removes the card node from its parent, wherever it currently
// sits. A node being repositioned is always detached first; scans over
// the segment must not see it.
func detach(card *Card) {
	if card.Node.Parent != nil {
		card.Node.Parent.RemoveChild(card.Node)
	}
}

// insertBefore places card immediately before ref, as ref's sibling.
func insertBefore(card *Card, ref *Card) {
	ref.Node.Parent.InsertBefore(card.Node, ref.Node)
}

// moveToEnd reparents the card node to the end of the segment node.
func moveToEnd(seg *Segment, card *Card) {
	detach(card)
	seg.Node.AppendChild(card.Node)
}
