// Package export renders scored publications as CSV, JSON, or XLSX.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/oeaw/storyscout/internal/model"
)

// Supported output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// columns is the flat-export column order. JSON exports carry the full
// record instead.
var columns = []string{
	"title", "authors", "doi", "published_at", "publication_type", "institute",
	"press_score", "public_accessibility", "societal_relevance", "novelty_factor",
	"storytelling_potential", "media_timeliness", "pitch_suggestion", "target_audience",
	"suggested_angle", "reasoning", "llm_model", "enriched_journal", "open_access",
}

// Write renders pubs to w in the given format.
func Write(w io.Writer, format string, pubs []model.Publication) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, pubs)
	case FormatJSON:
		return WriteJSON(w, pubs)
	case FormatXLSX:
		return WriteXLSX(w, pubs)
	default:
		return eris.Errorf("export: unsupported format %q", format)
	}
}

// ContentType returns the MIME type for a format, or an empty string for an
// unknown one.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return ""
	}
}

// Filename builds a dated download name like "storyscout-2026-09-01.csv".
func Filename(format string, now time.Time) string {
	return fmt.Sprintf("storyscout-%s.%s", now.UTC().Format("2006-01-02"), format)
}

// WriteCSV writes one header row plus one row per publication.
func WriteCSV(w io.Writer, pubs []model.Publication) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(columns); err != nil {
		return eris.Wrap(err, "export: write CSV header")
	}
	for i := range pubs {
		if err := cw.Write(flatRow(&pubs[i])); err != nil {
			return eris.Wrap(err, "export: write CSV row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush CSV")
}

// WriteJSON writes the full records as an indented JSON array. An empty
// result set yields "[]", not "null".
func WriteJSON(w io.Writer, pubs []model.Publication) error {
	if pubs == nil {
		pubs = []model.Publication{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(pubs), "export: encode JSON")
}

// WriteXLSX writes a single-sheet workbook with the flat-export columns.
func WriteXLSX(w io.Writer, pubs []model.Publication) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Publications")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range columns {
		header.AddCell().Value = col
	}
	for i := range pubs {
		row := sheet.AddRow()
		for _, val := range flatRow(&pubs[i]) {
			row.AddCell().Value = val
		}
	}

	return eris.Wrap(f.Write(w), "export: write workbook")
}

// flatRow renders one publication in the columns order. Missing values
// become empty cells.
func flatRow(p *model.Publication) []string {
	return []string{
		p.Title,
		strVal(p.Authors),
		strVal(p.DOI),
		strVal(p.PublishedAt),
		strVal(p.PublicationType),
		strVal(p.Institute),
		floatVal(p.PressScore),
		floatVal(p.PublicAccessibility),
		floatVal(p.SocietalRelevance),
		floatVal(p.NoveltyFactor),
		floatVal(p.StorytellingPotential),
		floatVal(p.MediaTimeliness),
		strVal(p.PitchSuggestion),
		strVal(p.TargetAudience),
		strVal(p.SuggestedAngle),
		strVal(p.Reasoning),
		strVal(p.LLMModel),
		strVal(p.EnrichedJournal),
		strconv.FormatBool(p.OpenAccess),
	}
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatVal(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
