package page

import "golang.org/x/net/html"

// jobFilterAll shows every card regardless of job type.
const jobFilterAll = "all"

// ApplyJobFilter hides every card whose job type differs from want and
// shows the rest. Cards without a job type are always visible. Passing
// "all" or the empty string clears the filter. Returns the number of
// cards now hidden.
func (ix *Index) ApplyJobFilter(want string) int {
	showAll := want == "" || want == jobFilterAll
	hidden := 0
	for _, seg := range ix.segs {
		for _, card := range seg.Cards {
			if showAll || card.JobType == "" || card.JobType == want {
				RemoveAttr(card.Node, "hidden")
				continue
			}
			SetAttr(card.Node, "hidden", "")
			hidden++
		}
	}
	return hidden
}

// ShowSection makes the page section with the given id visible and
// hides its sibling sections. Elements without an id stay hidden when
// any section toggle is in effect. Reports whether a section matched;
// an unknown id still hides the others, mirroring how the page behaves
// when navigation points at a section that was removed.
func (ix *Index) ShowSection(sectionID string) bool {
	found := false
	ix.doc.Walk(func(n *html.Node) bool {
		if !isElement(n) || !HasClass(n, ix.prof.Sections.Class) {
			return true
		}
		if id, ok := Attr(n, "id"); ok && id == sectionID {
			RemoveAttr(n, "hidden")
			found = true
		} else {
			SetAttr(n, "hidden", "")
		}
		return true
	})
	return found
}
