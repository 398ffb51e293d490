package analyze

import (
	"encoding/json"
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/oeaw/storyscout/internal/model"
)

// Evaluation is one publication's verdict in the model response.
type Evaluation struct {
	PublicationIndex int `json:"publication_index"`
	model.DimensionScores
	PitchSuggestion string `json:"pitch_suggestion"`
	TargetAudience  string `json:"target_audience"`
	SuggestedAngle  string `json:"suggested_angle"`
	Reasoning       string `json:"reasoning"`
}

type llmResponse struct {
	Evaluations []Evaluation `json:"evaluations"`
}

// Some models wrap JSON in a markdown code fence despite the
// response_format hint.
var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseEvaluations extracts the evaluations array from model output.
// It tries the content as raw JSON first, then the body of a fenced code
// block.
func ParseEvaluations(content string) ([]Evaluation, error) {
	var parsed llmResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		m := fencedJSONRe.FindStringSubmatch(content)
		if m == nil {
			return nil, eris.Errorf("analyze: response is not JSON (length %d)", len(content))
		}
		if err := json.Unmarshal([]byte(m[1]), &parsed); err != nil {
			return nil, eris.Wrap(err, "analyze: parse fenced JSON")
		}
	}

	if parsed.Evaluations == nil {
		return nil, eris.New("analyze: response missing evaluations array")
	}
	return parsed.Evaluations, nil
}
