package oracle

import (
	"context"

	"github.com/meowtion/sensor/internal/imaging"
)

// BreedAnalysis is the result of the single-shot breed identification
// capability. It shares the oracle transport with candidate matching but
// involves no aggregation.
type BreedAnalysis struct {
	IsCat       bool    `json:"isCat"`
	Breed       string  `json:"breed"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

const breedPrompt = `You are an expert in cat breeds. Analyze this image and identify the breed of the cat.
- If a cat is clearly visible, identify its breed.
- Provide a confidence score for your identification.
- Give a brief, one-paragraph description of the breed's key traits.
- If the image does not contain a cat, please state that clearly in the result.
- Return the analysis in the specified JSON format.`

// BreedSchema declares the output contract for breed identification.
func BreedSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"isCat": {
				Type:        TypeBoolean,
				Description: "Confirms if a cat is present in the image.",
			},
			"breed": {
				Type:        TypeString,
				Description: "The identified cat breed. If not a cat, this should be 'Not a cat'.",
			},
			"confidence": {
				Type:        TypeNumber,
				Description: "Confidence score from 0.0 to 1.0. If not a cat, this should be 0.",
			},
			"description": {
				Type:        TypeString,
				Description: "A short, engaging paragraph describing the breed's characteristics and temperament. If not a cat, briefly describe what is in the image.",
			},
		},
		Required: []string{"isCat", "breed", "confidence", "description"},
	}
}

// IdentifyBreed asks the oracle to classify the breed of the cat in img.
func IdentifyBreed(ctx context.Context, c Client, img imaging.EncodedImage) (*BreedAnalysis, error) {
	schema := BreedSchema()
	raw, err := c.Generate(ctx, []Part{TextPart(breedPrompt), ImagePart(img)}, schema)
	if err != nil {
		return nil, err
	}
	var analysis BreedAnalysis
	if err := Decode(raw, schema, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}
