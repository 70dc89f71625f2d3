package page

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fiveCardGrid builds a segment with five cards, card_1..card_5 at
// original indices 0..4.
func fiveCardGrid(t *testing.T) *Index {
	t.Helper()
	_, ix := buildDoc(t, `<div class="card-grid" id="tools">`+
		card(``)+card(``)+card(``)+card(``)+card(``)+
		`</div>`)
	require.Len(t, ix.Segments(), 1)
	require.Len(t, ix.Segments()[0].Cards, 5)
	return ix
}

func domOrderOf(t *testing.T, ix *Index, segID string) []string {
	t.Helper()
	order, err := ix.CardOrder(segID)
	require.NoError(t, err)
	return order
}

func starredSet(ids ...string) func(string) bool {
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

func TestFullReorderStarsFirstThenOriginalOrder(t *testing.T) {
	ix := fiveCardGrid(t)

	// Stars on original indices 1 and 3, starred in index order.
	require.NoError(t, ix.Reorder("tools", []string{"card_2", "card_4"}))

	assert.Equal(t,
		[]string{"card_2", "card_4", "card_1", "card_3", "card_5"},
		domOrderOf(t, ix, "tools"))
}

func TestFullReorderFollowsStarInsertionOrder(t *testing.T) {
	ix := fiveCardGrid(t)

	// Index 3 starred before index 1: the starred block keeps that
	// insertion order, not index order.
	require.NoError(t, ix.Reorder("tools", []string{"card_4", "card_2"}))

	assert.Equal(t,
		[]string{"card_4", "card_2", "card_1", "card_3", "card_5"},
		domOrderOf(t, ix, "tools"))
}

func TestFullReorderRestoresUnstarredAscending(t *testing.T) {
	ix := fiveCardGrid(t)

	// Scramble with one star, then clear all stars: unstarred cards
	// come back in ascending original-index order.
	require.NoError(t, ix.Reorder("tools", []string{"card_3"}))
	require.NoError(t, ix.Reorder("tools", nil))

	assert.Equal(t,
		[]string{"card_1", "card_2", "card_3", "card_4", "card_5"},
		domOrderOf(t, ix, "tools"))
}

func TestFullReorderSkipsMissingStarredIDs(t *testing.T) {
	ix := fiveCardGrid(t)

	// Persisted state may name cards that left the page.
	require.NoError(t, ix.Reorder("tools", []string{"card_99", "card_2", "card_2"}))

	assert.Equal(t,
		[]string{"card_2", "card_1", "card_3", "card_4", "card_5"},
		domOrderOf(t, ix, "tools"))
}

func TestFullReorderUnknownSegment(t *testing.T) {
	ix := fiveCardGrid(t)
	assert.Error(t, ix.Reorder("missing", nil))
}

func TestFullReorderKeepsNonCardChildren(t *testing.T) {
	doc, ix := buildDoc(t, `<div class="card-grid" id="tools"><h2>Tools</h2>`+
		card(``)+card(``)+
		`</div>`)

	require.NoError(t, ix.Reorder("tools", []string{"card_2"}))

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, out, "<h2>Tools</h2>")
	assert.Equal(t, []string{"card_2", "card_1"}, domOrderOf(t, ix, "tools"))
}

func TestRepositionStarredJoinsBackOfStarredBlock(t *testing.T) {
	ix := fiveCardGrid(t)
	require.NoError(t, ix.Reorder("tools", []string{"card_1", "card_2"}))

	// Starring card_4: it slots in after the existing starred block,
	// immediately before the first unstarred card.
	err := ix.RepositionStarred("card_4", starredSet("card_1", "card_2", "card_4"))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"card_1", "card_2", "card_4", "card_3", "card_5"},
		domOrderOf(t, ix, "tools"))
}

func TestRepositionStarredAppendsWhenAllStarred(t *testing.T) {
	_, ix := buildDoc(t, `<div class="card-grid" id="tools">`+card(``)+card(``)+`</div>`)
	require.NoError(t, ix.Reorder("tools", []string{"card_1"}))

	err := ix.RepositionStarred("card_2", starredSet("card_1", "card_2"))
	require.NoError(t, err)

	assert.Equal(t, []string{"card_1", "card_2"}, domOrderOf(t, ix, "tools"))
}

func TestRepositionUnstarredRestoresOriginalSlot(t *testing.T) {
	ix := fiveCardGrid(t)

	// Star original indices 0, 4, 2 in that order, giving DOM order
	// [0,4,2,1,3]. Unstarring index 2 must walk past the starred block
	// [0,4] and land between 1 and 3: [0,4,1,2,3].
	require.NoError(t, ix.Reorder("tools", []string{"card_1", "card_5", "card_3"}))
	require.Equal(t,
		[]string{"card_1", "card_5", "card_3", "card_2", "card_4"},
		domOrderOf(t, ix, "tools"))

	err := ix.RepositionUnstarred("card_3", starredSet("card_1", "card_5"))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"card_1", "card_5", "card_2", "card_3", "card_4"},
		domOrderOf(t, ix, "tools"))
}

func TestRepositionUnstarredAppendsWhenIndexIsLargest(t *testing.T) {
	ix := fiveCardGrid(t)
	require.NoError(t, ix.Reorder("tools", []string{"card_1", "card_5"}))
	// [0,4,1,2,3] with 4 starred; unstar card_5 (index 4): nothing
	// after it has a larger original index, so it goes to the end.
	err := ix.RepositionUnstarred("card_5", starredSet("card_1"))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"card_1", "card_2", "card_3", "card_4", "card_5"},
		domOrderOf(t, ix, "tools"))
}

func TestRepositionUnstarredWithoutStarredBlock(t *testing.T) {
	ix := fiveCardGrid(t)

	err := ix.RepositionUnstarred("card_3", starredSet())
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"card_1", "card_2", "card_3", "card_4", "card_5"},
		domOrderOf(t, ix, "tools"))
}

func TestRepositionUnknownCard(t *testing.T) {
	ix := fiveCardGrid(t)
	assert.Error(t, ix.RepositionStarred("card_99", starredSet()))
	assert.Error(t, ix.RepositionUnstarred("card_99", starredSet()))
}

func TestRepositionIsStableUnderRepeat(t *testing.T) {
	ix := fiveCardGrid(t)
	pred := starredSet("card_3")

	for i := 0; i < 3; i++ {
		require.NoError(t, ix.RepositionStarred("card_3", pred))
	}

	assert.Equal(t,
		[]string{"card_3", "card_1", "card_2", "card_4", "card_5"},
		domOrderOf(t, ix, "tools"))
}

func TestReorderThenRenderRoundTrips(t *testing.T) {
	doc, ix := buildDoc(t, `<div class="card-grid" id="tools">`+
		card(``)+card(``)+card(``)+
		`</div>`)
	require.NoError(t, ix.Reorder("tools", []string{"card_3"}))

	out, err := doc.HTML()
	require.NoError(t, err)

	// Re-parsing the rendered document and re-indexing reproduces the
	// same identifiers and the same physical order.
	doc2, err := ParseString(out)
	require.NoError(t, err)
	ix2 := BuildIndex(doc2, ix.prof)
	assert.Equal(t, []string{"card_3", "card_1", "card_2"}, domOrderOf(t, ix2, "tools"))
	assert.Zero(t, ix2.Stats.AssignedCardIDs)

	// Original indices survive the round trip, so a full reorder still
	// knows the original order.
	require.NoError(t, ix2.Reorder("tools", nil))
	assert.Equal(t, []string{"card_1", "card_2", "card_3"}, domOrderOf(t, ix2, "tools"))
}

func TestFullReorderPutsStarsBeforeHeading(t *testing.T) {
	// The heading sits before the cards in markup. Re-appending cards
	// leaves it at the front; stars then follow it. Rendering shows
	// the heading first, matching how the browser engine behaves.
	doc, ix := buildDoc(t, `<div class="card-grid" id="tools"><h2>Grid</h2>`+card(``)+`</div>`)
	require.NoError(t, ix.Reorder("tools", []string{"card_1"}))
	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "<h2>"), strings.Index(out, "card_1"))
}
