package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
)

const userAgent = "Mozilla/5.0 (compatible; Clara/1.0)"

func fetchHTML(ctx context.Context, rawURL string) (string, string, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read response: %w", err)
	}

	return string(body), resp.Request.URL.String(), nil
}

// urlPattern matches http(s) URLs in free text. Trailing punctuation is
// trimmed after the match.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractURLsTool pulls URLs out of message text. Pure and idempotent:
// the same input always yields the same list.
type ExtractURLsTool struct{}

func NewExtractURLsTool() *ExtractURLsTool { return &ExtractURLsTool{} }

func (t *ExtractURLsTool) Name() string { return "extract_urls" }

func (t *ExtractURLsTool) Description() string {
	return "Extracts all URLs from a piece of text. Returns them in order of appearance, deduplicated."
}

func (t *ExtractURLsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The text to scan for URLs",
			},
		},
		"required": []string{"text"},
	}
}

func (t *ExtractURLsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	text, ok := args["text"].(string)
	if !ok {
		return nil, fmt.Errorf("text is required")
	}
	return ExtractURLs(text), nil
}

// ExtractURLs returns the deduplicated URLs found in text, in order.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var urls []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?)]}\"'")
		if m == "" || seen[m] {
			continue
		}
		if _, err := url.Parse(m); err != nil {
			continue
		}
		seen[m] = true
		urls = append(urls, m)
	}
	return urls
}

// ScrapeWebContentTool fetches a page and returns its main content as
// markdown, boilerplate stripped.
type ScrapeWebContentTool struct{}

func NewScrapeWebContentTool() *ScrapeWebContentTool { return &ScrapeWebContentTool{} }

func (t *ScrapeWebContentTool) Name() string { return "scrape_web_content" }

func (t *ScrapeWebContentTool) Description() string {
	return "Fetches a web page and returns its main content as clean markdown. Extracts the main article, removing navigation, ads and boilerplate. Best for reading articles and announcements."
}

func (t *ScrapeWebContentTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch and convert to markdown",
			},
			"max_length": map[string]any{
				"type":        "integer",
				"description": "Maximum character length of the output (default: 50000)",
				"default":     50000,
			},
		},
		"required": []string{"url"},
	}
}

func (t *ScrapeWebContentTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	rawURL, ok := args["url"].(string)
	if !ok || rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}

	maxLength := 50000
	if v, ok := args["max_length"].(float64); ok && v > 0 {
		maxLength = int(v)
	}

	htmlContent, finalURL, err := fetchHTML(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	parsedURL, err := url.Parse(finalURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse final URL: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(htmlContent), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}

	var htmlBuf bytes.Buffer
	if err := article.RenderHTML(&htmlBuf); err != nil {
		return nil, fmt.Errorf("failed to render article: %w", err)
	}

	markdown, err := htmltomarkdown.ConvertString(htmlBuf.String(), converter.WithDomain(finalURL))
	if err != nil {
		return nil, fmt.Errorf("failed to convert to markdown: %w", err)
	}
	markdown = cleanWhitespace(markdown)

	if len(markdown) > maxLength {
		markdown = markdown[:maxLength] + "\n\n[Content truncated...]"
	}

	var textBuf bytes.Buffer
	article.RenderText(&textBuf)

	return ScrapeWebContentResult{
		URL:       finalURL,
		Title:     article.Title(),
		Content:   markdown,
		Excerpt:   article.Excerpt(),
		Author:    article.Byline(),
		SiteName:  article.SiteName(),
		WordCount: len(strings.Fields(textBuf.String())),
	}, nil
}

type ScrapeWebContentResult struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Excerpt   string `json:"excerpt,omitempty"`
	Author    string `json:"author,omitempty"`
	SiteName  string `json:"site_name,omitempty"`
	WordCount int    `json:"word_count"`
}

func cleanWhitespace(md string) string {
	re := regexp.MustCompile(`\n{3,}`)
	md = re.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}

// newsEventKeywords marks anchors that likely point at event
// announcements, in Spanish and English.
var newsEventKeywords = []string{
	"evento", "concierto", "festival", "agenda", "entradas", "taller",
	"conferencia", "charla", "exposición", "exposicion",
	"event", "concert", "tickets", "workshop", "conference", "talk", "exhibition",
}

// ScrapeNewsForEventsTool scans a listing page for links that look like
// event announcements.
type ScrapeNewsForEventsTool struct{}

func NewScrapeNewsForEventsTool() *ScrapeNewsForEventsTool { return &ScrapeNewsForEventsTool{} }

func (t *ScrapeNewsForEventsTool) Name() string { return "scrape_news_for_events" }

func (t *ScrapeNewsForEventsTool) Description() string {
	return "Scans a news or listing page and returns links that look like event announcements (concerts, workshops, conferences), with their anchor text."
}

func (t *ScrapeNewsForEventsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The listing page to scan",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of candidate links to return (default: 20)",
				"default":     20,
			},
		},
		"required": []string{"url"},
	}
}

func (t *ScrapeNewsForEventsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	rawURL, ok := args["url"].(string)
	if !ok || rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}

	maxResults := 20
	if v, ok := args["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}

	htmlContent, finalURL, err := fetchHTML(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(finalURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var candidates []EventLink
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		if len(candidates) >= maxResults {
			return
		}

		href, exists := s.Attr("href")
		if !exists || href == "" || href == "#" {
			return
		}

		linkURL, err := baseURL.Parse(href)
		if err != nil || (linkURL.Scheme != "http" && linkURL.Scheme != "https") {
			return
		}

		text := strings.TrimSpace(s.Text())
		if !looksLikeEvent(text, linkURL.String()) {
			return
		}

		absolute := linkURL.String()
		if seen[absolute] {
			return
		}
		seen[absolute] = true

		candidates = append(candidates, EventLink{URL: absolute, Text: text})
	})

	return ScrapeNewsResult{
		URL:        finalURL,
		TotalFound: len(candidates),
		Links:      candidates,
	}, nil
}

func looksLikeEvent(anchorText, linkURL string) bool {
	haystack := strings.ToLower(anchorText + " " + linkURL)
	for _, kw := range newsEventKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

type EventLink struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

type ScrapeNewsResult struct {
	URL        string      `json:"url"`
	TotalFound int         `json:"total_found"`
	Links      []EventLink `json:"links"`
}
