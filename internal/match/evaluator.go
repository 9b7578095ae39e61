// Package match implements the known-cat matching pipeline: per-candidate
// similarity evaluation against the reference roster, ranking, and the
// match decision policy.
package match

import (
	"context"
	"fmt"

	"github.com/meowtion/sensor/internal/imaging"
	"github.com/meowtion/sensor/internal/oracle"
	"github.com/meowtion/sensor/internal/roster"
)

// Evaluation is one oracle-derived similarity judgment between the user's
// image and one roster cat, with structured evidence.
type Evaluation struct {
	CatName            string   `json:"catName"`
	Similarity         float64  `json:"similarity"`
	MatchedFeatures    []string `json:"matchedFeatures"`
	MismatchedFeatures []string `json:"mismatchedFeatures"`
	Summary            string   `json:"summary"`
}

const evaluationPromptFormat = `You are a visual comparison expert identifying individual cats, not breeds.
The candidate cat is named %q. You are given the user's photo first, then the candidate's reference images.
- Enumerate the distinctive visual features that are consistent across the candidate's reference images.
- Enumerate the distinctive visual features of the cat in the user's photo.
- List the features that match and the features that conflict, citing concrete visual evidence such as fur patterns, markings, eye color, coat length, and body structure. Do not rely on vague overall impressions.
- Score the similarity from 0.0 to 1.0. Apply a heavy penalty for conflicts in markings, coat length, or body structure.
- Return the evaluation in the specified JSON format.`

// EvaluationSchema declares the output contract for one candidate
// evaluation.
func EvaluationSchema() *oracle.Schema {
	return &oracle.Schema{
		Type: oracle.TypeObject,
		Properties: map[string]*oracle.Schema{
			"catName": {
				Type:        oracle.TypeString,
				Description: "The name of the candidate cat being evaluated.",
			},
			"similarity": {
				Type:        oracle.TypeNumber,
				Description: "Similarity score from 0.0 to 1.0 between the user's cat and the candidate.",
			},
			"matchedFeatures": {
				Type:        oracle.TypeArray,
				Items:       &oracle.Schema{Type: oracle.TypeString},
				Description: "Short statements of visual features that match, citing concrete evidence.",
			},
			"mismatchedFeatures": {
				Type:        oracle.TypeArray,
				Items:       &oracle.Schema{Type: oracle.TypeString},
				Description: "Short statements of visual features that conflict, citing concrete evidence.",
			},
			"summary": {
				Type:        oracle.TypeString,
				Description: "One-sentence justification of the similarity score.",
			},
		},
		Required: []string{"catName", "similarity", "matchedFeatures", "mismatchedFeatures", "summary"},
	}
}

// Evaluator judges one roster cat at a time against a user image.
type Evaluator struct {
	oracle  oracle.Client
	encoder *imaging.Encoder
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(client oracle.Client, encoder *imaging.Encoder) *Evaluator {
	return &Evaluator{oracle: client, encoder: encoder}
}

// EvaluateCandidate compares the encoded user image against one roster
// cat. The returned evaluation always carries the authoritative roster
// name and a similarity clamped into [0, 1], regardless of what the
// oracle echoed.
func (e *Evaluator) EvaluateCandidate(ctx context.Context, userImage imaging.EncodedImage, cat roster.Cat) (Evaluation, error) {
	parts := make([]oracle.Part, 0, len(cat.Images)+4)
	parts = append(parts,
		oracle.TextPart(fmt.Sprintf(evaluationPromptFormat, cat.Name)),
		oracle.TextPart("--- User's Cat Image ---"),
		oracle.ImagePart(userImage),
		oracle.TextPart(fmt.Sprintf("--- Reference Images for %s ---", cat.Name)),
	)
	for _, src := range cat.Images {
		ref, err := e.encoder.EncodeCached(ctx, src)
		if err != nil {
			return Evaluation{}, fmt.Errorf("reference image for %s: %w", cat.Name, err)
		}
		parts = append(parts, oracle.ImagePart(ref))
	}

	schema := EvaluationSchema()
	raw, err := e.oracle.Generate(ctx, parts, schema)
	if err != nil {
		return Evaluation{}, err
	}

	var ev Evaluation
	if err := oracle.Decode(raw, schema, &ev); err != nil {
		return Evaluation{}, err
	}

	// The roster name is authoritative; never trust the oracle's echo.
	ev.CatName = cat.Name
	ev.Similarity = clamp01(ev.Similarity)
	if ev.MatchedFeatures == nil {
		ev.MatchedFeatures = []string{}
	}
	if ev.MismatchedFeatures == nil {
		ev.MismatchedFeatures = []string{}
	}
	return ev, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
