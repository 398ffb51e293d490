// Package enrich implements the multi-source metadata enrichment cascade.
package enrich

import (
	"regexp"
	"strings"
)

// DOIs arrive from the imported catalog in several shapes:
// http://dx.doi.org/10.x, https://doi.org/10.x, doi:10.x, or bare.
// Every upstream API wants the bare form.
var (
	doiPrefixRe = regexp.MustCompile(`(?i)^https?://(?:dx\.)?doi\.org/`)
	doiSchemeRe = regexp.MustCompile(`(?i)^doi:`)
)

// CleanDOI strips URL and scheme prefixes from a raw DOI and validates it.
// It returns the bare DOI ("10.1093/em/caaf012") or "" if invalid.
func CleanDOI(raw string) string {
	doi := strings.TrimSpace(raw)
	doi = doiPrefixRe.ReplaceAllString(doi, "")
	doi = doiSchemeRe.ReplaceAllString(doi, "")
	doi = strings.TrimSpace(doi)

	// A valid DOI always starts with "10."
	if !strings.HasPrefix(doi, "10.") {
		return ""
	}
	return doi
}

// DOIToURL converts a raw DOI in any format into a canonical
// https://doi.org/ URL, or "" if the DOI is invalid.
func DOIToURL(raw string) string {
	doi := CleanDOI(raw)
	if doi == "" {
		return ""
	}
	return "https://doi.org/" + doi
}

// IsPDFURL reports whether a URL points directly at a PDF document.
func IsPDFURL(url string) bool {
	return strings.HasSuffix(strings.ToLower(url), ".pdf")
}
