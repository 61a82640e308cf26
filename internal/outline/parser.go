package outline

import (
	"regexp"
	"strings"
)

// PageType is the structural role of a page.
type PageType string

const (
	PageCover   PageType = "cover"
	PageContent PageType = "content"
	PageSummary PageType = "summary"
)

// Page is one unit of a parsed outline. Content keeps the leading tag.
type Page struct {
	Index   int      `json:"index"`
	Type    PageType `json:"type"`
	Content string   `json:"content"`
}

const legacyDelimiter = "---"

var (
	pageDelimiterRe = regexp.MustCompile(`(?i)<page>`)
	pageTagRe       = regexp.MustCompile(`^\[(\S+)\]`)
)

var pageTags = map[string]PageType{
	"封面": PageCover,
	"内容": PageContent,
	"总结": PageSummary,
}

// Parse splits raw model output into pages. It splits on <page> (any case)
// when present and on --- otherwise; the two are never mixed. Empty segments
// are dropped and do not take an index.
func Parse(raw string) []Page {
	var segments []string
	if pageDelimiterRe.MatchString(raw) {
		segments = pageDelimiterRe.Split(raw, -1)
	} else {
		segments = strings.Split(raw, legacyDelimiter)
	}

	pages := make([]Page, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		pages = append(pages, Page{
			Index:   len(pages),
			Type:    pageType(seg),
			Content: seg,
		})
	}
	return pages
}

func pageType(seg string) PageType {
	m := pageTagRe.FindStringSubmatch(seg)
	if m == nil {
		return PageContent
	}
	if t, ok := pageTags[m[1]]; ok {
		return t
	}
	return PageContent
}
