package page

// SyncControl aligns a card's toggle control with its starred state:
// the starred class, aria-pressed, and the action label. Cards without
// a control are left alone.
func (ix *Index) SyncControl(card *Card, starred bool) {
	if card.Control == nil {
		return
	}
	ctl := ix.prof.Control
	if starred {
		AddClass(card.Control, ctl.StarredClass)
		SetAttr(card.Control, "aria-pressed", "true")
		SetAttr(card.Control, "aria-label", ctl.UnstarLabel)
	} else {
		RemoveClass(card.Control, ctl.StarredClass)
		SetAttr(card.Control, "aria-pressed", "false")
		SetAttr(card.Control, "aria-label", ctl.StarLabel)
	}
}

// SyncAllControls aligns every indexed card's control, used once after
// hydrate. isStarred is consulted per card.
func (ix *Index) SyncAllControls(isStarred func(segID, cardID string) bool) {
	for _, seg := range ix.segs {
		for _, card := range seg.Cards {
			ix.SyncControl(card, isStarred(seg.ID, card.ID))
		}
	}
}
