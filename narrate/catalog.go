package narrate

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
)

// Voice is one entry of the voice catalog.
type Voice struct {
	// Key is the short identifier used in config and Start calls,
	// e.g. "en-amy".
	Key string
	// DisplayName is what the UI shows, e.g. "Amy (US English)".
	DisplayName string
	// Language is the BCP 47 code the voice speaks, e.g. "en-US".
	// Engines are loaded per language, so every catalog language needs
	// a matching engine at startup.
	Language string
}

// Catalog is the set of voices narration can use. It is immutable after
// construction and safe for concurrent reads.
type Catalog struct {
	voices map[string]Voice
	order  []string
}

// NewCatalog builds a catalog from the given voices. Keys must be unique and
// language codes must parse as BCP 47 tags.
func NewCatalog(voices ...Voice) (*Catalog, error) {
	c := &Catalog{voices: make(map[string]Voice, len(voices))}
	for _, v := range voices {
		if v.Key == "" {
			return nil, fmt.Errorf("%w: empty key (display name %q)", ErrBadVoice, v.DisplayName)
		}
		if _, ok := c.voices[v.Key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVoice, v.Key)
		}
		if _, err := language.Parse(v.Language); err != nil {
			return nil, fmt.Errorf("%w: voice %s: %q", ErrBadLanguage, v.Key, v.Language)
		}
		c.voices[v.Key] = v
		c.order = append(c.order, v.Key)
	}
	return c, nil
}

// Lookup returns the voice for a key.
func (c *Catalog) Lookup(key string) (Voice, bool) {
	v, ok := c.voices[key]
	return v, ok
}

// Voices returns all voices in registration order.
func (c *Catalog) Voices() []Voice {
	out := make([]Voice, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.voices[key])
	}
	return out
}

// Languages returns the distinct language codes in the catalog, sorted.
// Startup loads one engine per entry.
func (c *Catalog) Languages() []string {
	seen := make(map[string]bool)
	var out []string
	for _, key := range c.order {
		lang := c.voices[key].Language
		if !seen[lang] {
			seen[lang] = true
			out = append(out, lang)
		}
	}
	sort.Strings(out)
	return out
}

// Next returns the voice after key in registration order, wrapping around.
// It is how the UI cycles voices. An unknown key returns the first voice.
func (c *Catalog) Next(key string) (Voice, bool) {
	if len(c.order) == 0 {
		return Voice{}, false
	}
	for i, k := range c.order {
		if k == key {
			return c.voices[c.order[(i+1)%len(c.order)]], true
		}
	}
	return c.voices[c.order[0]], true
}
