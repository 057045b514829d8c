// Package epc looks up energy certificates on the public register and
// resolves them to properties through the candidate selector.
package epc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/comps-engine/internal/address"
	"github.com/comps-engine/internal/record"
	"github.com/comps-engine/internal/selector"
)

// Certificate is a resolved register entry.
type Certificate struct {
	Address       string
	FloorAreaSqFt float64
	URL           string
}

// Client searches the certificate register. It supplies raw candidate
// tuples to the selector and never loosens the selector's rules: a NoMatch
// outcome becomes a "no certificate found" state, not a retry.
type Client struct {
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	selector *selector.Selector
	logger   *zap.Logger

	// maxAreaFetches caps certificate-page fetches made to break ties.
	maxAreaFetches int
}

// NewClient creates a Client. requestsPerSecond <= 0 disables limiting.
func NewClient(baseURL string, timeout time.Duration, requestsPerSecond float64, sel *selector.Selector, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(limit, 1),
		selector:       sel,
		logger:         logger,
		maxAreaFetches: 6,
	}
}

// Resolve finds the certificate for the target address, or reports
// confidently that there is none. Floor areas are fetched only for
// candidates that already share the target's house number, and only when
// needed to break a tie.
func (c *Client) Resolve(ctx context.Context, targetAddress, postcode string, knownFloorAreaSqFt *float64) (*Certificate, selector.Result, error) {
	candidates, err := c.SearchByPostcode(ctx, postcode)
	if err != nil {
		return nil, selector.Result{}, err
	}

	targetNumber := address.ExtractHouseNumber(targetAddress)
	fetched := 0
	for i := range candidates {
		if fetched >= c.maxAreaFetches {
			break
		}
		number := address.ExtractHouseNumber(candidates[i].Address)
		if !selector.IsExactHouseNumberMatch(targetNumber, number) {
			continue
		}
		area, err := c.FloorArea(ctx, candidates[i].CertificateURL)
		if err != nil {
			c.logger.Warn("floor area fetch failed",
				zap.String("url", candidates[i].CertificateURL), zap.Error(err))
			continue
		}
		candidates[i].FloorAreaSqFt = area
		fetched++
	}

	result := c.selector.SelectBestMatch(targetAddress, candidates, knownFloorAreaSqFt)
	if result.Kind == selector.NoMatch {
		return nil, result, nil
	}
	best := result.Best.Candidate
	return &Certificate{
		Address:       best.Address,
		FloorAreaSqFt: best.FloorAreaSqFt,
		URL:           best.CertificateURL,
	}, result, nil
}

// SearchByPostcode fetches the register search page for a postcode and
// extracts the candidate rows.
func (c *Client) SearchByPostcode(ctx context.Context, postcode string) ([]selector.Candidate, error) {
	endpoint := fmt.Sprintf("%s/find-a-certificate/search-by-postcode?postcode=%s",
		c.baseURL, url.QueryEscape(postcode))
	body, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	candidates, err := ParseSearchResults(body, base)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}
	c.logger.Debug("certificate search", zap.String("postcode", postcode),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// FloorArea fetches one certificate page and extracts its total floor area
// in square feet.
func (c *Client) FloorArea(ctx context.Context, certURL string) (float64, error) {
	body, err := c.fetch(ctx, certURL)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	return ParseFloorArea(body)
}

func (c *Client) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return resp.Body, nil
}

// ParseSearchResults extracts certificate candidates from a register search
// page: every anchor linking to an /energy-certificate/ path, with the
// anchor text as the candidate address.
func ParseSearchResults(r io.Reader, base *url.URL) ([]selector.Candidate, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var candidates []selector.Candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if strings.Contains(href, "/energy-certificate/") {
				addr := strings.Join(strings.Fields(textContent(n)), " ")
				if addr != "" {
					candidates = append(candidates, selector.Candidate{
						Address:        addr,
						CertificateURL: resolveURL(base, href),
					})
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return candidates, nil
}

var reFloorArea = regexp.MustCompile(`(?i)total floor area\D*(\d+(?:\.\d+)?)\s*(?:square metres|square meters|m²|m2)`)

// ParseFloorArea extracts "Total floor area ... square metres" from a
// certificate page and converts it to square feet.
func ParseFloorArea(r io.Reader) (float64, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return 0, err
	}
	text := strings.Join(strings.Fields(textContent(doc)), " ")
	m := reFloorArea.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("no floor area found on certificate page")
	}
	sqm, ok := record.ParseNumber(m[1])
	if !ok {
		return 0, fmt.Errorf("unparseable floor area %q", m[1])
	}
	return sqm * record.SqmToSqFt, nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		b.WriteString(textContent(child))
		b.WriteString(" ")
	}
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func resolveURL(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
