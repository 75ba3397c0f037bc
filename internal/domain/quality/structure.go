package quality

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var tagRe = regexp.MustCompile(`<[^>]*>`)

// BodyAnalysis summarizes the structure of a candidate body.
type BodyAnalysis struct {
	Text           string // plain text with markup stripped
	WordCount      int
	CharCount      int
	HeadingCount   int
	ParagraphCount int
	ListCount      int
	ImageCount     int
	IsHTML         bool
}

// AnalyzeBody parses the body as an HTML fragment when it carries markup and
// counts headings, paragraphs, lists, and images. Plain-text bodies fall back
// to line-based counting: markdown-style '#' headings and blank-line
// separated paragraphs.
func AnalyzeBody(body string) BodyAnalysis {
	if looksLikeHTML(body) {
		if a, ok := analyzeHTML(body); ok {
			return a
		}
	}
	return analyzePlainText(body)
}

func looksLikeHTML(body string) bool {
	return strings.Contains(body, "<") && strings.Contains(body, ">")
}

func analyzeHTML(body string) (BodyAnalysis, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return BodyAnalysis{}, false
	}

	// Tags are stripped with whitespace separation so adjacent elements do
	// not merge words.
	text := strings.TrimSpace(strings.Join(strings.Fields(tagRe.ReplaceAllString(body, " ")), " "))
	a := BodyAnalysis{
		Text:           text,
		WordCount:      len(strings.Fields(text)),
		CharCount:      len(text),
		HeadingCount:   doc.Find("h1,h2,h3,h4,h5,h6").Length(),
		ParagraphCount: doc.Find("p").Length(),
		ListCount:      doc.Find("ul,ol").Length(),
		ImageCount:     doc.Find("img").Length(),
		IsHTML:         true,
	}

	// A fragment with angle brackets but no recognized block elements is
	// treated as plain text.
	if a.HeadingCount == 0 && a.ParagraphCount == 0 && a.ListCount == 0 && a.ImageCount == 0 {
		return BodyAnalysis{}, false
	}
	return a, true
}

func analyzePlainText(body string) BodyAnalysis {
	text := strings.TrimSpace(body)
	a := BodyAnalysis{
		Text:      text,
		WordCount: len(strings.Fields(text)),
		CharCount: len(text),
	}

	paragraphOpen := false
	listOpen := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			paragraphOpen = false
			listOpen = false
		case strings.HasPrefix(trimmed, "#"):
			a.HeadingCount++
			paragraphOpen = false
			listOpen = false
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			if !listOpen {
				a.ListCount++
				listOpen = true
			}
			paragraphOpen = false
		default:
			if !paragraphOpen {
				a.ParagraphCount++
				paragraphOpen = true
			}
			listOpen = false
		}
	}
	return a
}
