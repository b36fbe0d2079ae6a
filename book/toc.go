package book

import (
	"encoding/xml"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
)

const ncxMediaType = "application/x-dtbncx+xml"

// NCX is the EPUB 2 navigation document. EPUB 3 books still ship one for
// compatibility, so it is the only TOC format we bother with.
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	Label     navLabel   `xml:"navLabel"`
	Content   navContent `xml:"content"`
	NavPoints []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// readNCX extracts the table of contents from the book's NCX document and
// resolves each entry to a spine position. Entries pointing outside the
// spine are dropped. Any failure yields an empty TOC.
func readNCX(rf *epub.Rootfile, spine []*epub.Item) []TOCEntry {
	item := findNCX(rf)
	if item == nil {
		return nil
	}
	r, err := item.Open()
	if err != nil {
		return nil
	}
	defer r.Close() //nolint:errcheck

	data, err := io.ReadAll(r)
	if err != nil {
		return nil
	}
	var doc ncx
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil
	}

	index := spineIndex(spine)
	var entries []TOCEntry
	var flatten func(points []navPoint, depth int)
	flatten = func(points []navPoint, depth int) {
		for _, p := range points {
			title := strings.TrimSpace(p.Label.Text)
			if i, ok := resolveHref(index, p.Content.Src); ok && title != "" {
				entries = append(entries, TOCEntry{Title: title, Level: depth, Chapter: i})
			}
			flatten(p.NavPoints, depth+1)
		}
	}
	flatten(doc.NavMap.NavPoints, 0)
	return entries
}

func findNCX(rf *epub.Rootfile) *epub.Item {
	for i, item := range rf.Manifest.Items {
		if item.MediaType == ncxMediaType {
			return &rf.Manifest.Items[i]
		}
	}
	for i, item := range rf.Manifest.Items {
		if strings.HasSuffix(strings.ToLower(item.HREF), ".ncx") {
			return &rf.Manifest.Items[i]
		}
	}
	return nil
}

// spineIndex maps spine item hrefs, both as written and by base name, to
// their reading-order position.
func spineIndex(spine []*epub.Item) map[string]int {
	index := make(map[string]int, len(spine)*2)
	for i, item := range spine {
		if _, ok := index[item.HREF]; !ok {
			index[item.HREF] = i
		}
		base := path.Base(item.HREF)
		if _, ok := index[base]; !ok {
			index[base] = i
		}
	}
	return index
}

func resolveHref(index map[string]int, src string) (int, bool) {
	href := strings.SplitN(src, "#", 2)[0]
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if href == "" {
		return 0, false
	}
	if i, ok := index[href]; ok {
		return i, true
	}
	i, ok := index[path.Base(href)]
	return i, ok
}
