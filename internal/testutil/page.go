package testutil

import (
	"fmt"
	"html"
	"strings"

	"github.com/COMEONSOM/stargrid/internal/page"
)

// CardSpec describes one synthesized card. Zero-value fields are omitted
// from the markup, which leaves ID assignment to the indexer.
type CardSpec struct {
	ID  string
	URL string
	Job string
}

// SegmentSpec describes one synthesized grid container and its cards.
type SegmentSpec struct {
	// Name becomes the container's id attribute, the usual source of the
	// derived segment ID ("Star Tools" indexes as "star_tools").
	Name string

	// ID, when set, becomes an explicit data-segment-id and wins over Name.
	ID string

	Cards []CardSpec
}

// Cards returns n anonymous card specs, the common case of a grid whose
// markup carries no explicit IDs.
func Cards(n int) []CardSpec {
	return make([]CardSpec, n)
}

// GridHTML renders a full page holding the given segments. The markup
// follows the default profile's class and attribute contract, so the
// result indexes without a custom profile.
func GridHTML(segments ...SegmentSpec) string {
	var b strings.Builder
	b.WriteString("<html><head></head><body>")
	for _, seg := range segments {
		b.WriteString(`<div class="card-grid"`)
		writeAttr(&b, "id", seg.Name)
		writeAttr(&b, "data-segment-id", seg.ID)
		b.WriteString(">")
		for _, card := range seg.Cards {
			b.WriteString(`<div class="card"`)
			writeAttr(&b, "data-card-id", card.ID)
			writeAttr(&b, "data-url", card.URL)
			writeAttr(&b, "data-job-type", card.Job)
			b.WriteString(`><button class="star-btn" type="button">☆</button></div>`)
		}
		b.WriteString("</div>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

// MustGrid synthesizes and parses a page in one step. Panics on a parse
// failure, which synthesized markup cannot produce.
func MustGrid(segments ...SegmentSpec) *page.Document {
	doc, err := page.ParseString(GridHTML(segments...))
	if err != nil {
		panic(fmt.Sprintf("testutil: parse synthesized grid: %v", err))
	}
	return doc
}

func writeAttr(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	b.WriteString(" ")
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(value))
	b.WriteString(`"`)
}
