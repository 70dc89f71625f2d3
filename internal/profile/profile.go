// Package profile defines the page contract a grid engine operates
// against: which elements are cards and segments, which attributes carry
// their identifiers, which storage keys hold identity and star state,
// and the capacity and timing limits that govern toggles.
//
// Profiles are written in CUE. A user profile is unified over the
// embedded defaults, so partial profiles are valid and only constrain
// what they mention.
package profile

import (
	"fmt"
	"sync"
	"time"
)

// CardRules locates card elements and names the attributes the engine
// reads and writes on them.
type CardRules struct {
	// Classes are matched against an element's class list. An element
	// carrying any of them is treated as a card.
	Classes []string `json:"classes"`

	IDAttr    string `json:"idAttr"`
	IndexAttr string `json:"indexAttr"`
	URLAttr   string `json:"urlAttr"`
	JobAttr   string `json:"jobAttr"`
}

// SegmentRules locates the grid containers cards live in.
type SegmentRules struct {
	Classes []string `json:"classes"`
	IDAttr  string `json:"idAttr"`
}

// ControlRules names the toggle control inside a card and the visual
// state the engine maintains on it.
type ControlRules struct {
	Class        string `json:"class"`
	StarredClass string `json:"starredClass"`
	StarLabel    string `json:"starLabel"`
	UnstarLabel  string `json:"unstarLabel"`
}

// SectionRules names the top-level page sections the show/hide toggles
// operate on.
type SectionRules struct {
	Class string `json:"class"`
}

// IdentityRules configures identity resolution: the URL query
// parameters consulted first, then the durable main-site key, then the
// cache key, then the guest fallback.
type IdentityRules struct {
	QueryParams []string `json:"queryParams"`
	MainSiteKey string   `json:"mainSiteKey"`
	CacheKey    string   `json:"cacheKey"`
	Guest       string   `json:"guest"`
}

// Profile is the full page contract. Zero values are never valid; use
// Default or Load.
type Profile struct {
	Cards    CardRules     `json:"cards"`
	Segments SegmentRules  `json:"segments"`
	Control  ControlRules  `json:"control"`
	Sections SectionRules  `json:"sections"`
	Identity IdentityRules `json:"identity"`

	// StateKeyPrefix is prepended to the resolved identity to form the
	// per-user star state key.
	StateKeyPrefix string `json:"stateKeyPrefix"`

	// MaxStars caps the number of starred cards per user. Always >= 1.
	MaxStars int `json:"maxStars"`

	// ReloadDelayMs is the grace period between detecting an identity
	// conflict and reloading, so rapid changes coalesce into one reload.
	ReloadDelayMs int `json:"reloadDelayMs"`
}

var (
	defaultOnce sync.Once
	defaultProf *Profile
	defaultErr  error
)

// Default returns a copy of the embedded default profile.
func Default() *Profile {
	defaultOnce.Do(func() {
		defaultProf, defaultErr = Parse([]byte(defaultSource), "default.cue")
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("profile: embedded defaults are invalid: %v", defaultErr))
	}
	return defaultProf.Clone()
}

// Clone returns a deep copy. Engines treat profiles as immutable, so a
// caller that wants to tweak one clones first.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Cards.Classes = append([]string(nil), p.Cards.Classes...)
	c.Segments.Classes = append([]string(nil), p.Segments.Classes...)
	c.Identity.QueryParams = append([]string(nil), p.Identity.QueryParams...)
	return &c
}

// StateKey returns the storage key holding the star state for identity.
func (p *Profile) StateKey(identity string) string {
	return p.StateKeyPrefix + identity
}

// ReloadDelay returns ReloadDelayMs as a duration.
func (p *Profile) ReloadDelay() time.Duration {
	return time.Duration(p.ReloadDelayMs) * time.Millisecond
}

// Validate checks the structural rules CUE cannot express, mostly that
// the key namespaces stay distinct. Parse calls this on every load.
func (p *Profile) Validate() error {
	if len(p.Cards.Classes) == 0 {
		return fmt.Errorf("profile: cards.classes must name at least one class")
	}
	if len(p.Segments.Classes) == 0 {
		return fmt.Errorf("profile: segments.classes must name at least one class")
	}
	for _, f := range []struct{ name, v string }{
		{"cards.idAttr", p.Cards.IDAttr},
		{"cards.indexAttr", p.Cards.IndexAttr},
		{"segments.idAttr", p.Segments.IDAttr},
		{"control.class", p.Control.Class},
		{"control.starredClass", p.Control.StarredClass},
		{"identity.mainSiteKey", p.Identity.MainSiteKey},
		{"identity.cacheKey", p.Identity.CacheKey},
		{"identity.guest", p.Identity.Guest},
		{"stateKeyPrefix", p.StateKeyPrefix},
	} {
		if f.v == "" {
			return fmt.Errorf("profile: %s must not be empty", f.name)
		}
	}
	if p.Identity.MainSiteKey == p.Identity.CacheKey {
		return fmt.Errorf("profile: identity.mainSiteKey and identity.cacheKey must differ (both %q)", p.Identity.MainSiteKey)
	}
	if p.MaxStars < 1 {
		return fmt.Errorf("profile: maxStars must be >= 1, got %d", p.MaxStars)
	}
	if p.ReloadDelayMs < 0 {
		return fmt.Errorf("profile: reloadDelayMs must be >= 0, got %d", p.ReloadDelayMs)
	}
	return nil
}
