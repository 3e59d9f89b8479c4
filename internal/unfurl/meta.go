package unfurl

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// pageMeta is the raw material scraped from a document's head.
type pageMeta struct {
	title string
	tags  map[string]string
}

// extractMeta tokenizes an HTML document and collects <title> plus
// og:/twitter:/name= meta tags. The tokenizer decodes entities in both
// attribute values and text, so scraped strings arrive unescaped.
func extractMeta(body []byte) *pageMeta {
	meta := &pageMeta{tags: make(map[string]string)}

	z := html.NewTokenizer(bytes.NewReader(body))
	elements := 0
	inTitle := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			return meta

		case html.StartTagToken, html.SelfClosingTagToken:
			token := z.Token()
			switch token.Data {
			case "meta":
				var key, content string
				for _, attr := range token.Attr {
					switch strings.ToLower(attr.Key) {
					case "property", "name":
						if key == "" {
							key = strings.ToLower(strings.TrimSpace(attr.Val))
						}
					case "content":
						content = attr.Val
					}
				}
				if key != "" && content != "" {
					if _, seen := meta.tags[key]; !seen {
						meta.tags[key] = cleanText(content)
					}
				}
			case "title":
				if token.Type == html.StartTagToken {
					inTitle = true
				}
			case "body":
				// Everything we want lives in the head.
				return meta
			}
			elements++

		case html.TextToken:
			if inTitle && meta.title == "" {
				meta.title = cleanText(z.Token().Data)
			}

		case html.EndTagToken:
			if token := z.Token(); token.Data == "title" {
				inTitle = false
			}
		}

		// A malformed document without a body tag should not make us
		// chew through the whole capped body.
		if elements > 4096 {
			return meta
		}
	}
}

func (m *pageMeta) first(keys ...string) string {
	for _, key := range keys {
		if v := m.tags[key]; v != "" {
			return v
		}
	}
	return ""
}

// bestTitle prefers Open Graph, then Twitter cards, then <title>.
func (m *pageMeta) bestTitle() string {
	if v := m.first("og:title", "twitter:title"); v != "" {
		return v
	}
	return m.title
}

func (m *pageMeta) bestDescription() string {
	return m.first("og:description", "twitter:description", "description")
}

func (m *pageMeta) bestImage(base *url.URL) string {
	raw := m.first("og:image", "og:image:url", "twitter:image", "twitter:image:src")
	if raw == "" {
		return ""
	}
	resolved, err := base.Parse(raw)
	if err != nil {
		return ""
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func (m *pageMeta) siteName() string {
	return m.first("og:site_name")
}

// cleanText collapses runs of whitespace (scraped titles routinely
// carry newlines and indentation) and NFC-normalizes so visually equal
// strings compare equal downstream.
func cleanText(s string) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(collapsed)
}
