package enrich

import (
	"regexp"
	"strings"
)

// Bounds for an acceptable abstract candidate.
const (
	minAbstractChars = 100
	maxAbstractChars = 3000

	// Strategy 3 has no terminator to stop at, so cap the prose block.
	fallbackAbstractCap = 2000
)

var (
	// Section markers that typically follow an abstract.
	terminatorRe = regexp.MustCompile(`(?i)(?:\n\s*(?:keywords?|key\s*words|introduction|1\s*[.)]|citation:|author\s+summary|editor'?s\s+summary|background)\b|\n\n\n)`)

	headerRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\babstract\b`),
		regexp.MustCompile(`(?i)\bsummary\b`),
		regexp.MustCompile(`(?i)\bzusammenfassung\b`),
	}

	leadingPunctRe  = regexp.MustCompile(`^[:\s.\-]+`)
	leadingMarkerRe = regexp.MustCompile("^[\\s.,;:*†‡§]+")

	citationLineRe = regexp.MustCompile(`(?i)\nCitation:`)
	introLineRe    = regexp.MustCompile(`(?i)\nIntroduction\b`)

	// Country names closing an affiliation line.
	countryRe = regexp.MustCompile(`(?i)\b(?:Austria|Germany|Switzerland|USA|UK|United Kingdom|United States|France|Italy|Spain|Netherlands|Sweden|Japan|China|Australia|Canada|Israel|Belgium|Czech Republic|Poland|Denmark|Norway|Finland|Hungary|Portugal|Brazil|India|South Korea|Taiwan|Singapore)\b`)

	emailRe = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w{2,}`)

	// Footnote markers common in author affiliations.
	footnoteRe = regexp.MustCompile("(?i)[*†‡§]\\s*(?:These authors|Corresponding|Current address|E-mail)")

	collapseRe = regexp.MustCompile(`\s+`)

	upperStartRe = regexp.MustCompile(`^[A-Z]`)
)

func flatten(s string) string {
	return collapseRe.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " ")
}

// findLastAffiliationEnd locates where affiliation text ends in a
// flattened title+affiliations+abstract block: the end of the last country
// name, email-like pattern, or affiliation footnote marker. Returns -1
// when no marker is found.
func findLastAffiliationEnd(text string) int {
	lastPos := -1
	for _, re := range []*regexp.Regexp{countryRe, emailRe, footnoteRe} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if loc[1] > lastPos {
				lastPos = loc[1]
			}
		}
	}
	return lastPos
}

// ExtractAbstract attempts to locate an abstract in extracted first-page
// PDF text. Strategies are ordered and the first success wins:
//
//  1. an explicit "Abstract"/"Summary"/"Zusammenfassung" header followed
//     by a recognizable section terminator,
//  2. prose between the end of the affiliation block and a "Citation:" or
//     "Introduction" line (journals that fuse title, affiliations and
//     abstract into one block),
//  3. the affiliation heuristic on the whole flattened text, capped and
//     cut at a sentence boundary (preprint servers without terminators).
//
// Returns "" when no strategy yields an acceptable candidate.
func ExtractAbstract(text string) string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	// Strategy 1: explicit header.
	for _, headerRe := range headerRes {
		loc := headerRe.FindStringIndex(normalized)
		if loc == nil {
			continue
		}
		afterHeader := leadingPunctRe.ReplaceAllString(normalized[loc[1]:], "")
		end := terminatorRe.FindStringIndex(afterHeader)
		if end == nil {
			continue
		}
		candidate := strings.TrimSpace(flatten(afterHeader[:end[0]]))
		if len(candidate) >= minAbstractChars && len(candidate) <= maxAbstractChars {
			return candidate
		}
	}

	// Strategy 2: affiliation boundary up to Citation:/Introduction.
	endIdx := -1
	if loc := citationLineRe.FindStringIndex(normalized); loc != nil && loc[0] > 0 {
		endIdx = loc[0]
	} else if loc := introLineRe.FindStringIndex(normalized); loc != nil {
		endIdx = loc[0]
	}
	if endIdx > 200 {
		beforeEnd := flatten(normalized[:endIdx])
		if affEnd := findLastAffiliationEnd(beforeEnd); affEnd > 0 {
			candidate := strings.TrimSpace(beforeEnd[affEnd:])
			if len(candidate) >= minAbstractChars && len(candidate) <= maxAbstractChars &&
				strings.Contains(candidate, ". ") {
				return candidate
			}
		}
	}

	// Strategy 3: affiliation boundary on the full flattened text.
	flat := flatten(normalized)
	if affEnd := findLastAffiliationEnd(flat); affEnd > 100 {
		candidate := strings.TrimSpace(leadingMarkerRe.ReplaceAllString(flat[affEnd:], ""))
		if len(candidate) > fallbackAbstractCap {
			if cut := strings.LastIndex(candidate[:fallbackAbstractCap], ". "); cut > 500 {
				candidate = candidate[:cut+1]
			} else {
				candidate = candidate[:fallbackAbstractCap]
			}
		}
		if len(candidate) >= minAbstractChars && strings.Contains(candidate, ". ") &&
			upperStartRe.MatchString(candidate) {
			return candidate
		}
	}

	return ""
}
