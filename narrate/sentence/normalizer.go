package sentence

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	linkPattern   = regexp.MustCompile(`(?:https?://|www\.)\S+`)
	schemePattern = regexp.MustCompile(`^https?://`)
	multiSpace    = regexp.MustCompile(`\s+`)
)

// symbolSpeech is applied in order; later rules see already-rewritten text.
var symbolSpeech = []struct {
	from, to string
}{
	{" > ", " is greater than "},
	{" < ", " is less than "},
	{"+", " plus "},
	{"=", " equals "},
	{" - ", " minus "},
}

// Normalizer assigns sentence ids and rewrites text for speech. It is not
// safe for concurrent use; create one per chapter render.
type Normalizer struct {
	acronyms map[string]bool
	titler   cases.Caser
}

// NewNormalizer creates a normalizer with the default acronym allow-list.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		acronyms: makeAcronymSet(),
		titler:   cases.Title(language.English),
	}
}

// Normalize splits the blocks into sentences, assigns each sentence the next
// sequential id ("tts-sentence-<n>", counter reset per call), rewrites the
// sentence for speech, and returns the speakable chunks in playback order
// together with the span-annotated blocks. Sentences whose rewritten text is
// empty keep their span but contribute no chunk.
func (n *Normalizer) Normalize(blocks []Block) ([]Chunk, []MarkedBlock) {
	chunks := make([]Chunk, 0, len(blocks))
	marked := make([]MarkedBlock, 0, len(blocks))

	next := 0
	for _, block := range blocks {
		if strings.TrimSpace(block.Text) == "" {
			marked = append(marked, MarkedBlock{Block: block})
			continue
		}

		segs := splitSentences(block.Text)
		mb := MarkedBlock{Block: block, Spans: make([]Span, 0, len(segs))}
		for _, seg := range segs {
			id := fmt.Sprintf("tts-sentence-%d", next)
			next++
			mb.Spans = append(mb.Spans, Span{ID: id, Start: seg.start, End: seg.end})

			if spoken := n.normalizeSentence(seg.text); spoken != "" {
				chunks = append(chunks, Chunk{ID: id, Text: spoken})
			}
		}
		marked = append(marked, mb)
	}

	return chunks, marked
}

// normalizeSentence applies the speech rewrites in their fixed order.
func (n *Normalizer) normalizeSentence(text string) string {
	text = speakLinks(text)
	text = speakSymbols(text)
	text = n.tameUppercase(text)
	return strings.TrimSpace(multiSpace.ReplaceAllString(text, " "))
}

// speakLinks rewrites URL-like tokens into pronounceable words: the scheme is
// dropped and separators are spoken ("example dot com slash page hyphen 1").
func speakLinks(text string) string {
	r := strings.NewReplacer(
		".", " dot ",
		"/", " slash ",
		"-", " hyphen ",
		"_", " underscore ",
	)
	return linkPattern.ReplaceAllStringFunc(text, func(tok string) string {
		tok = schemePattern.ReplaceAllString(tok, "")
		tok = r.Replace(tok)
		return strings.TrimSpace(multiSpace.ReplaceAllString(tok, " "))
	})
}

// speakSymbols replaces comparison and arithmetic glyphs with words.
func speakSymbols(text string) string {
	for _, s := range symbolSpeech {
		text = strings.ReplaceAll(text, s.from, s.to)
	}
	return text
}

// tameUppercase rewrites shouty lines so engines stop spelling them out
// letter by letter. A line qualifies when it holds more than two fully
// uppercase tokens of length > 1; each such token is title-cased unless it
// is a known acronym. Lines below the threshold pass through untouched.
func (n *Normalizer) tameUppercase(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = n.tameUppercaseLine(line)
	}
	return strings.Join(lines, "\n")
}

func (n *Normalizer) tameUppercaseLine(line string) string {
	fields := strings.Fields(line)

	count := 0
	for _, f := range fields {
		if isShouty(f) {
			count++
		}
	}
	if count <= 2 {
		return line
	}

	for i, f := range fields {
		if !isShouty(f) {
			continue
		}
		if n.acronyms[strings.TrimRight(f, trailingPunct)] {
			continue
		}
		fields[i] = n.titler.String(strings.ToLower(f))
	}
	return strings.Join(fields, " ")
}

const trailingPunct = `.,;:!?"')]}`

// isShouty reports whether a token is fully uppercase with length > 1,
// ignoring trailing punctuation.
func isShouty(tok string) bool {
	tok = strings.TrimRight(tok, trailingPunct)
	if len(tok) < 2 {
		return false
	}
	upper := false
	for _, r := range tok {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			upper = true
		}
	}
	return upper
}

type segment struct {
	text  string
	start int
	end   int
}

// splitSentences cuts text on sentence-ending punctuation (. ? !) followed
// by whitespace. Pieces are trimmed and empties dropped; offsets refer to
// the trimmed region in the original text. A period inside a number or URL
// is not followed by whitespace, so it never splits.
func splitSentences(text string) []segment {
	var segs []segment

	last := 0
	prev := rune(0)
	for i, r := range text {
		if (prev == '.' || prev == '?' || prev == '!') && unicode.IsSpace(r) {
			segs = appendSegment(segs, text, last, i)
			last = i
		}
		prev = r
	}
	return appendSegment(segs, text, last, len(text))
}

func appendSegment(segs []segment, text string, start, end int) []segment {
	raw := text[start:end]
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return segs
	}
	off := start + strings.Index(raw, trimmed)
	return append(segs, segment{text: trimmed, start: off, end: off + len(trimmed)})
}

// makeAcronymSet builds the allow-list of abbreviations that are spoken
// letter by letter on purpose and must survive uppercase taming.
func makeAcronymSet() map[string]bool {
	acronyms := []string{
		"NASA", "FBI", "CIA", "USA", "UK", "EU", "UN",
		"API", "URL", "HTML", "CSS", "HTTP", "HTTPS", "JSON", "XML", "SQL",
		"CPU", "GPU", "RAM", "USB", "DNS", "OS", "AI",
		"PDF", "EPUB", "TTS", "UI", "ID", "OK", "TV",
	}

	m := make(map[string]bool, len(acronyms))
	for _, a := range acronyms {
		m[a] = true
	}
	return m
}
