package knowledge

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	htmlTagRe    = regexp.MustCompile(`(?i)<(html|body|div|p|h[1-6]|ul|ol|li|table|span|br|article|section)[\s>/]`)
)

func looksLikeHTML(content string) bool {
	return htmlTagRe.MatchString(content)
}

// cleanContent returns the readable text of content. HTML is stripped of
// navigation and script elements; plain text only has whitespace collapsed.
func cleanContent(content string) string {
	if looksLikeHTML(content) {
		return cleanHTML(content)
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(content, " "))
}

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var parts []string
	collectText(doc.Find("body"), &parts)

	text := whitespaceRe.ReplaceAllString(strings.Join(parts, " "), " ")
	return strings.TrimSpace(text)
}

// collectText appends every text node under s in document order, so text
// from adjacent elements stays separated.
func collectText(s *goquery.Selection, parts *[]string) {
	s.Contents().Each(func(_ int, n *goquery.Selection) {
		if goquery.NodeName(n) == "#text" {
			*parts = append(*parts, n.Text())
			return
		}
		collectText(n, parts)
	})
}

func extractTitle(content string) string {
	if !looksLikeHTML(content) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}
	return strings.TrimSpace(title)
}

func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return []string{text}
	}

	sentences := doc.Sentences()
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// chunkText groups whole sentences into chunks of at most maxChars. A single
// sentence longer than maxChars is split on word boundaries. The last
// sentence of a chunk is repeated at the start of the next one.
func chunkText(text string, maxChars int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var pieces []string
	for _, s := range splitSentences(text) {
		if len(s) <= maxChars {
			pieces = append(pieces, s)
			continue
		}
		pieces = append(pieces, splitWords(s, maxChars)...)
	}

	var chunks []string
	var current []string
	size := 0

	for _, p := range pieces {
		if size > 0 && size+1+len(p) > maxChars {
			chunks = append(chunks, strings.Join(current, " "))

			overlap := current[len(current)-1]
			current = current[:0]
			size = 0
			if len(overlap)+1+len(p) <= maxChars {
				current = append(current, overlap)
				size = len(overlap)
			}
		}

		if size > 0 {
			size++
		}
		current = append(current, p)
		size += len(p)
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

func splitWords(sentence string, maxChars int) []string {
	var out []string
	var b strings.Builder
	for _, w := range strings.Fields(sentence) {
		if b.Len() > 0 && b.Len()+1+len(w) > maxChars {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
