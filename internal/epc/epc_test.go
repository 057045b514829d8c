package epc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/comps-engine/internal/selector"
)

const searchPage = `<!DOCTYPE html>
<html><body>
<table class="govuk-table">
  <tbody>
    <tr class="govuk-table__row">
      <td><a class="govuk-link" href="/energy-certificate/1111-aaaa">303, Wharf Road, Rudheath, NORTHWICH, CW9 7SN</a></td>
      <td>D</td>
    </tr>
    <tr class="govuk-table__row">
      <td><a class="govuk-link" href="/energy-certificate/2222-bbbb">Spen Lea, 317 Wharf Road, Rudheath, NORTHWICH, CW9 7SN</a></td>
      <td>C</td>
    </tr>
    <tr class="govuk-table__row">
      <td><a class="govuk-link" href="/energy-certificate/3333-cccc">317, Wharf Road, Rudheath, NORTHWICH, CW9 7SN</a></td>
      <td>E</td>
    </tr>
  </tbody>
</table>
<a href="/help">Help</a>
</body></html>`

func certPage(sqm float64) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><body>
<dl class="govuk-summary-list">
  <div><dt>Property type</dt><dd>Semi-detached house</dd></div>
  <div><dt>Total floor area</dt><dd>%.0f square metres</dd></div>
</dl>
</body></html>`, sqm)
}

func TestParseSearchResults(t *testing.T) {
	base, _ := url.Parse("https://register.example.com")
	candidates, err := ParseSearchResults(strings.NewReader(searchPage), base)
	if err != nil {
		t.Fatalf("ParseSearchResults() error = %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(candidates))
	}
	if candidates[0].Address != "303, Wharf Road, Rudheath, NORTHWICH, CW9 7SN" {
		t.Errorf("candidate[0].Address = %q", candidates[0].Address)
	}
	if candidates[1].CertificateURL != "https://register.example.com/energy-certificate/2222-bbbb" {
		t.Errorf("candidate[1].CertificateURL = %q", candidates[1].CertificateURL)
	}
}

func TestParseFloorArea(t *testing.T) {
	got, err := ParseFloorArea(strings.NewReader(certPage(93)))
	if err != nil {
		t.Fatalf("ParseFloorArea() error = %v", err)
	}
	want := 93 * 10.7639
	if got < want-0.1 || got > want+0.1 {
		t.Errorf("ParseFloorArea() = %v, want %v", got, want)
	}

	if _, err := ParseFloorArea(strings.NewReader("<html><body>No area here</body></html>")); err == nil {
		t.Error("ParseFloorArea() without area succeeded, want error")
	}
}

func TestResolvePicksFloorAreaTieBreak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/find-a-certificate/"):
			fmt.Fprint(w, searchPage)
		case r.URL.Path == "/energy-certificate/2222-bbbb":
			fmt.Fprint(w, certPage(21)) // ~226 sq ft
		case r.URL.Path == "/energy-certificate/3333-cccc":
			fmt.Fprint(w, certPage(65)) // ~700 sq ft
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	sel := selector.New(selector.Options{}, nil)
	client := NewClient(srv.URL, 5*time.Second, 0, sel, nil)

	known := 226.0
	cert, result, err := client.Resolve(context.Background(), "317 Wharf Road, Rudheath", "CW9 7SN", &known)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Kind != selector.AmbiguousMatch {
		t.Fatalf("Kind = %v, want AmbiguousMatch", result.Kind)
	}
	if !strings.Contains(cert.Address, "Spen Lea") {
		t.Errorf("resolved %q, want the Spen Lea certificate", cert.Address)
	}
	if cert.URL != srv.URL+"/energy-certificate/2222-bbbb" {
		t.Errorf("certificate URL = %q", cert.URL)
	}
}

func TestResolveNoConfidentMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage)
	}))
	defer srv.Close()

	sel := selector.New(selector.Options{}, nil)
	client := NewClient(srv.URL, 5*time.Second, 0, sel, nil)

	cert, result, err := client.Resolve(context.Background(), "310 Wharf Road, Rudheath", "CW9 7SN", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cert != nil || result.Kind != selector.NoMatch {
		t.Errorf("Resolve() = %+v kind %v, want nil certificate and NoMatch", cert, result.Kind)
	}
}
