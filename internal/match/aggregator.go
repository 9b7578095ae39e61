package match

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meowtion/sensor/internal/imaging"
	"github.com/meowtion/sensor/internal/oracle"
	"github.com/meowtion/sensor/internal/roster"
)

// Result is the final decision produced by one FindMatch call.
// Evaluations is the full candidate ranking, most similar first.
type Result struct {
	IsMatch        bool         `json:"isMatch"`
	MatchedCatName string       `json:"matchedCatName"`
	Confidence     float64      `json:"confidence"`
	Reasoning      string       `json:"reasoning"`
	Evaluations    []Evaluation `json:"evaluations"`
}

// Policy converts the top-ranked evaluation into a match decision. A high
// similarity alone is not enough: if the oracle itself logged multiple
// concrete conflicts, the conflict gate suppresses the match.
type Policy struct {
	// SimilarityThreshold is the minimum similarity of the top candidate.
	SimilarityThreshold float64
	// MaxConflicts is the maximum number of non-empty mismatched
	// features the top candidate may carry.
	MaxConflicts int
	// Timeout bounds one whole FindMatch gather. A single deadline
	// covers every candidate evaluation so a slow oracle cannot leave
	// the fan-out with a partial ranking. Zero means no deadline.
	Timeout time.Duration
}

// DefaultPolicy returns the policy observed in production use. Both values
// are tunables, not derived constants; they are surfaced in configuration
// for product-owner review.
func DefaultPolicy() Policy {
	return Policy{SimilarityThreshold: 0.75, MaxConflicts: 1}
}

// Matcher runs the full known-cat matching pipeline.
type Matcher struct {
	evaluator *Evaluator
	encoder   *imaging.Encoder
	roster    *roster.Roster
	policy    Policy
}

// NewMatcher creates a Matcher over the given roster.
func NewMatcher(client oracle.Client, encoder *imaging.Encoder, r *roster.Roster, policy Policy) *Matcher {
	return &Matcher{
		evaluator: NewEvaluator(client, encoder),
		encoder:   encoder,
		roster:    r,
		policy:    policy,
	}
}

// FindMatch encodes the user image once, evaluates every roster cat
// concurrently, ranks the evaluations, and applies the decision policy.
//
// The fan-out is fail-fast: if any candidate evaluation fails the whole
// call fails, because a silently dropped candidate could invalidate the
// ranking. There is no partial-success mode.
func (m *Matcher) FindMatch(ctx context.Context, src imaging.Source) (*Result, error) {
	userImage, err := m.encoder.Encode(ctx, src)
	if err != nil {
		return nil, err
	}
	return m.FindMatchEncoded(ctx, userImage)
}

// FindMatchEncoded runs the pipeline for an already-encoded user image.
// Callers that validate the upload themselves (the HTTP and MCP
// boundaries) use this to avoid re-encoding.
func (m *Matcher) FindMatchEncoded(ctx context.Context, userImage imaging.EncodedImage) (*Result, error) {
	if m.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.policy.Timeout)
		defer cancel()
	}

	cats := m.roster.Cats()
	evals := make([]Evaluation, len(cats))

	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range cats {
		g.Go(func() error {
			ev, err := m.evaluator.EvaluateCandidate(gctx, userImage, cat)
			if err != nil {
				return fmt.Errorf("evaluate candidate %s: %w", cat.Name, err)
			}
			evals[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Completion order carries no meaning; rank by similarity. The stable
	// sort preserves roster order for equal similarities, so the earlier
	// registered cat wins a tie.
	sort.SliceStable(evals, func(i, j int) bool {
		return evals[i].Similarity > evals[j].Similarity
	})

	return m.decide(evals), nil
}

func (m *Matcher) decide(evals []Evaluation) *Result {
	best := evals[0]
	conflicts := nonEmpty(best.MismatchedFeatures)

	if best.Similarity >= m.policy.SimilarityThreshold && len(conflicts) <= m.policy.MaxConflicts {
		return &Result{
			IsMatch:        true,
			MatchedCatName: best.CatName,
			Confidence:     best.Similarity,
			Reasoning:      best.Summary,
			Evaluations:    evals,
		}
	}

	reasoning := fmt.Sprintf("Closest match is %s, but there were insufficient distinctive matches to confirm it.", best.CatName)
	if len(conflicts) > 0 {
		reasoning = fmt.Sprintf("Closest match is %s, but conflicts include: %s.", best.CatName, strings.Join(conflicts, "; "))
	}
	return &Result{
		IsMatch:        false,
		MatchedCatName: "",
		Confidence:     best.Similarity,
		Reasoning:      reasoning,
		Evaluations:    evals,
	}
}

func nonEmpty(features []string) []string {
	out := make([]string, 0, len(features))
	for _, f := range features {
		if strings.TrimSpace(f) != "" {
			out = append(out, f)
		}
	}
	return out
}
