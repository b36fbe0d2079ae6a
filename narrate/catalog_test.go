package narrate

import (
	"errors"
	"testing"
)

func testVoices() []Voice {
	return []Voice{
		{Key: "en-amy", DisplayName: "Amy (US English)", Language: "en-US"},
		{Key: "en-joe", DisplayName: "Joe (US English)", Language: "en-US"},
		{Key: "de-eva", DisplayName: "Eva (German)", Language: "de-DE"},
	}
}

func TestNewCatalogValidation(t *testing.T) {
	tests := []struct {
		name    string
		voices  []Voice
		wantErr error
	}{
		{"valid", testVoices(), nil},
		{"duplicate key", append(testVoices(), Voice{Key: "en-amy", DisplayName: "Amy again", Language: "en-US"}), ErrDuplicateVoice},
		{"bad language", []Voice{{Key: "x", DisplayName: "X", Language: "not a tag"}}, ErrBadLanguage},
		{"empty key", []Voice{{DisplayName: "anon", Language: "en"}}, ErrBadVoice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.voices...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewCatalog() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCatalogLookupAndOrder(t *testing.T) {
	c, err := NewCatalog(testVoices()...)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	if _, ok := c.Lookup("en-joe"); !ok {
		t.Error("Lookup(en-joe) not found")
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Error("Lookup(nope) found a voice")
	}

	voices := c.Voices()
	if len(voices) != 3 {
		t.Fatalf("Voices() returned %d, want 3", len(voices))
	}
	for i, want := range []string{"en-amy", "en-joe", "de-eva"} {
		if voices[i].Key != want {
			t.Errorf("Voices()[%d] = %s, want %s", i, voices[i].Key, want)
		}
	}

	langs := c.Languages()
	if len(langs) != 2 || langs[0] != "de-DE" || langs[1] != "en-US" {
		t.Errorf("Languages() = %v, want [de-DE en-US]", langs)
	}
}

func TestCatalogNext(t *testing.T) {
	c, err := NewCatalog(testVoices()...)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"en-amy", "en-joe"},
		{"en-joe", "de-eva"},
		{"de-eva", "en-amy"}, // wraps
		{"unknown", "en-amy"},
	}

	for _, tt := range tests {
		got, ok := c.Next(tt.key)
		if !ok {
			t.Errorf("Next(%s) not ok", tt.key)
			continue
		}
		if got.Key != tt.want {
			t.Errorf("Next(%s) = %s, want %s", tt.key, got.Key, tt.want)
		}
	}

	empty, _ := NewCatalog()
	if _, ok := empty.Next("en-amy"); ok {
		t.Error("Next() on empty catalog = ok")
	}
}
