package match_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meowtion/sensor/internal/apperr"
	"github.com/meowtion/sensor/internal/imaging"
	"github.com/meowtion/sensor/internal/match"
	"github.com/meowtion/sensor/internal/oracle"
	"github.com/meowtion/sensor/internal/roster"
	"github.com/meowtion/sensor/internal/testutil"
)

// scripted is one fake evaluation keyed by candidate name.
type scripted struct {
	similarity float64
	matched    []string
	mismatched []string
	summary    string
}

// respondByName builds an OracleStub Respond func that answers each
// candidate request with its scripted evaluation. The candidate is
// recovered from the prompt text of the first part.
func respondByName(t *testing.T, script map[string]scripted) func([]oracle.Part, *oracle.Schema) ([]byte, error) {
	t.Helper()
	return func(parts []oracle.Part, _ *oracle.Schema) ([]byte, error) {
		if len(parts) == 0 || parts[0].Text == "" {
			t.Error("request has no leading prompt text")
			return nil, errors.New("malformed request")
		}
		for name, s := range script {
			if !strings.Contains(parts[0].Text, fmt.Sprintf("%q", name)) {
				continue
			}
			matched, mismatched := s.matched, s.mismatched
			if matched == nil {
				matched = []string{}
			}
			if mismatched == nil {
				mismatched = []string{}
			}
			raw, err := json.Marshal(match.Evaluation{
				CatName:            name,
				Similarity:         s.similarity,
				MatchedFeatures:    matched,
				MismatchedFeatures: mismatched,
				Summary:            s.summary,
			})
			if err != nil {
				return nil, err
			}
			return raw, nil
		}
		return nil, fmt.Errorf("no scripted response for prompt %q", parts[0].Text)
	}
}

func newRoster(t *testing.T, names ...string) *roster.Roster {
	t.Helper()
	cats := make([]roster.Cat, 0, len(names))
	for _, name := range names {
		cats = append(cats, roster.Cat{
			Name:   name,
			Images: []imaging.Source{imaging.BlobSource{Bytes: testutil.PNG(), MediaType: "image/png"}},
		})
	}
	r, err := roster.New(cats)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func userImage() imaging.Source {
	return imaging.BlobSource{Bytes: testutil.PNG(), MediaType: "image/png"}
}

func TestEvaluateCandidatePartOrder(t *testing.T) {
	var captured []oracle.Part
	stub := &testutil.OracleStub{Respond: func(parts []oracle.Part, _ *oracle.Schema) ([]byte, error) {
		captured = parts
		return []byte(`{"catName": "Oreo", "similarity": 0.5, "matchedFeatures": [], "mismatchedFeatures": [], "summary": "ok"}`), nil
	}}

	dir := testutil.AssetDir(t, "oreo.png", "oreo2.png")
	cat := roster.Cat{Name: "Oreo", Images: []imaging.Source{
		imaging.FileSource{Path: filepath.Join(dir, "oreo.png")},
		imaging.FileSource{Path: filepath.Join(dir, "oreo2.png")},
	}}
	encoder := imaging.NewEncoder()
	ev := match.NewEvaluator(stub, encoder)

	user, err := encoder.Encode(context.Background(), userImage())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ev.EvaluateCandidate(context.Background(), user, cat); err != nil {
		t.Fatalf("EvaluateCandidate failed: %v", err)
	}

	if len(captured) != 6 {
		t.Fatalf("sent %d parts, want 6", len(captured))
	}
	if !strings.Contains(captured[0].Text, `"Oreo"`) {
		t.Errorf("prompt %q does not name the candidate", captured[0].Text)
	}
	if captured[1].Text != "--- User's Cat Image ---" {
		t.Errorf("user image label = %q", captured[1].Text)
	}
	if captured[2].Image == nil {
		t.Error("third part is not the user image")
	}
	if captured[3].Text != "--- Reference Images for Oreo ---" {
		t.Errorf("reference label = %q", captured[3].Text)
	}
	if captured[4].Image == nil || captured[5].Image == nil {
		t.Error("reference images missing from the tail parts")
	}
}

func TestFindMatchAcceptsTopCandidate(t *testing.T) {
	stub := &testutil.OracleStub{Respond: respondByName(t, map[string]scripted{
		"Oreo":      {similarity: 0.92, matched: []string{"tuxedo chest patch", "green eyes"}, summary: "Strong tuxedo pattern match."},
		"Twix":      {similarity: 0.41, mismatched: []string{"different coat color"}, summary: "Coat color differs."},
		"Microwave": {similarity: 0.12, mismatched: []string{"long hair vs short hair"}, summary: "Coat length differs."},
	})}
	m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Microwave", "Twix", "Oreo"), match.DefaultPolicy())

	res, err := m.FindMatch(context.Background(), userImage())
	if err != nil {
		t.Fatalf("FindMatch failed: %v", err)
	}
	if !res.IsMatch {
		t.Fatalf("expected a match, got %+v", res)
	}
	if res.MatchedCatName != "Oreo" {
		t.Fatalf("matched %q, want Oreo", res.MatchedCatName)
	}
	if res.Confidence != 0.92 {
		t.Fatalf("confidence = %v, want 0.92", res.Confidence)
	}
	if res.Reasoning != "Strong tuxedo pattern match." {
		t.Fatalf("reasoning = %q", res.Reasoning)
	}
	if stub.Calls() != 3 {
		t.Fatalf("oracle called %d times, want 3", stub.Calls())
	}
}

func TestFindMatchConflictGateSuppressesMatch(t *testing.T) {
	stub := &testutil.OracleStub{Respond: respondByName(t, map[string]scripted{
		"Oreo": {
			similarity: 0.80,
			mismatched: []string{"white paws vs black paws", "shorter tail"},
			summary:    "Similar but with clear conflicts.",
		},
		"Twix": {similarity: 0.30, summary: "Weak resemblance."},
	})}
	m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Oreo", "Twix"), match.DefaultPolicy())

	res, err := m.FindMatch(context.Background(), userImage())
	if err != nil {
		t.Fatalf("FindMatch failed: %v", err)
	}
	if res.IsMatch {
		t.Fatal("expected no match: two conflicts exceed the gate")
	}
	if res.MatchedCatName != "" {
		t.Fatalf("matchedCatName = %q, want empty", res.MatchedCatName)
	}
	for _, want := range []string{"Oreo", "white paws vs black paws", "shorter tail"} {
		if !strings.Contains(res.Reasoning, want) {
			t.Fatalf("reasoning %q missing %q", res.Reasoning, want)
		}
	}
}

func TestFindMatchClampsSimilarity(t *testing.T) {
	stub := &testutil.OracleStub{Respond: respondByName(t, map[string]scripted{
		"Eggs":     {similarity: 1.4, summary: "Overexcited oracle."},
		"Snickers": {similarity: -0.2, summary: "Confused oracle."},
	})}
	m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Eggs", "Snickers"), match.DefaultPolicy())

	res, err := m.FindMatch(context.Background(), userImage())
	if err != nil {
		t.Fatalf("FindMatch failed: %v", err)
	}
	if res.Evaluations[0].Similarity != 1.0 {
		t.Fatalf("top similarity = %v, want clamped 1.0", res.Evaluations[0].Similarity)
	}
	if res.Evaluations[1].Similarity != 0.0 {
		t.Fatalf("bottom similarity = %v, want clamped 0.0", res.Evaluations[1].Similarity)
	}
}

func TestFindMatchRosterNameIsAuthoritative(t *testing.T) {
	stub := &testutil.OracleStub{Respond: func(parts []oracle.Part, _ *oracle.Schema) ([]byte, error) {
		// Echo a wrong name regardless of the candidate asked about.
		return []byte(`{"catName": "Garfield", "similarity": 0.9, "matchedFeatures": [], "mismatchedFeatures": [], "summary": "ok"}`), nil
	}}
	m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Oreo"), match.DefaultPolicy())

	res, err := m.FindMatch(context.Background(), userImage())
	if err != nil {
		t.Fatalf("FindMatch failed: %v", err)
	}
	if res.MatchedCatName != "Oreo" {
		t.Fatalf("matched %q, want the roster name Oreo", res.MatchedCatName)
	}
	if res.Evaluations[0].CatName != "Oreo" {
		t.Fatalf("evaluation catName = %q, want Oreo", res.Evaluations[0].CatName)
	}
}

func TestFindMatchRanksDescending(t *testing.T) {
	stub := &testutil.OracleStub{Respond: respondByName(t, map[string]scripted{
		"Microwave": {similarity: 0.20},
		"Twix":      {similarity: 0.60},
		"Oreo":      {similarity: 0.40},
		"Eggs":      {similarity: 0.90},
	})}
	m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Microwave", "Twix", "Oreo", "Eggs"), match.DefaultPolicy())

	res, err := m.FindMatch(context.Background(), userImage())
	if err != nil {
		t.Fatalf("FindMatch failed: %v", err)
	}
	var got []string
	for _, ev := range res.Evaluations {
		got = append(got, ev.CatName)
	}
	want := []string{"Eggs", "Twix", "Oreo", "Microwave"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranking = %v, want %v", got, want)
		}
	}
}

func TestFindMatchTieBreaksByRosterOrder(t *testing.T) {
	stub := &testutil.OracleStub{Respond: respondByName(t, map[string]scripted{
		"Twix": {similarity: 0.75, summary: "First registered."},
		"Oreo": {similarity: 0.75, summary: "Second registered."},
	})}
	m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Twix", "Oreo"), match.DefaultPolicy())

	res, err := m.FindMatch(context.Background(), userImage())
	if err != nil {
		t.Fatalf("FindMatch failed: %v", err)
	}
	if !res.IsMatch || res.MatchedCatName != "Twix" {
		t.Fatalf("tie should go to the earlier roster entry, got %+v", res)
	}
}

func TestFindMatchThresholdBoundary(t *testing.T) {
	for _, tc := range []struct {
		similarity float64
		want       bool
	}{
		{0.75, true},
		{0.7499, false},
	} {
		stub := &testutil.OracleStub{Respond: respondByName(t, map[string]scripted{
			"Oreo": {similarity: tc.similarity, summary: "Boundary case."},
		})}
		m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Oreo"), match.DefaultPolicy())

		res, err := m.FindMatch(context.Background(), userImage())
		if err != nil {
			t.Fatalf("FindMatch failed: %v", err)
		}
		if res.IsMatch != tc.want {
			t.Fatalf("similarity %v: isMatch = %v, want %v", tc.similarity, res.IsMatch, tc.want)
		}
	}
}

func TestFindMatchBlankConflictsIgnored(t *testing.T) {
	stub := &testutil.OracleStub{Respond: respondByName(t, map[string]scripted{
		"Oreo": {
			similarity: 0.88,
			mismatched: []string{"", "   ", "slightly different whisker length"},
			summary:    "One real conflict only.",
		},
	})}
	m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Oreo"), match.DefaultPolicy())

	res, err := m.FindMatch(context.Background(), userImage())
	if err != nil {
		t.Fatalf("FindMatch failed: %v", err)
	}
	if !res.IsMatch {
		t.Fatal("blank mismatched features must not count toward the conflict gate")
	}
}

func TestFindMatchNoMatchReasoningWithoutConflicts(t *testing.T) {
	stub := &testutil.OracleStub{Respond: respondByName(t, map[string]scripted{
		"Oreo": {similarity: 0.50, summary: "Vague resemblance."},
	})}
	m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Oreo"), match.DefaultPolicy())

	res, err := m.FindMatch(context.Background(), userImage())
	if err != nil {
		t.Fatalf("FindMatch failed: %v", err)
	}
	if res.IsMatch {
		t.Fatal("expected no match")
	}
	if !strings.Contains(res.Reasoning, "Oreo") || !strings.Contains(res.Reasoning, "insufficient distinctive matches") {
		t.Fatalf("unexpected reasoning %q", res.Reasoning)
	}
}

func TestFindMatchFailFastOnReferenceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	stub := &testutil.OracleStub{Respond: respondByName(t, map[string]scripted{
		"Twix": {similarity: 0.9, summary: "Would have matched."},
	})}
	cats := []roster.Cat{
		{Name: "Twix", Images: []imaging.Source{imaging.BlobSource{Bytes: testutil.PNG(), MediaType: "image/png"}}},
		{Name: "Oreo", Images: []imaging.Source{imaging.URLSource{URL: srv.URL + "/oreo-1.png"}}},
	}
	r, err := roster.New(cats)
	if err != nil {
		t.Fatal(err)
	}
	m := match.NewMatcher(stub, imaging.NewEncoder(), r, match.DefaultPolicy())

	res, err := m.FindMatch(context.Background(), userImage())
	if res != nil {
		t.Fatal("expected no result on candidate failure")
	}
	var ferr *apperr.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *apperr.FetchError, got %v", err)
	}
	if ferr.Status != http.StatusNotFound {
		t.Fatalf("fetch status = %d, want 404", ferr.Status)
	}
	if !strings.Contains(err.Error(), "Oreo") {
		t.Fatalf("error %q should name the failing candidate", err)
	}
}

func TestFindMatchPropagatesOracleError(t *testing.T) {
	stub := &testutil.OracleStub{Respond: func([]oracle.Part, *oracle.Schema) ([]byte, error) {
		return nil, &apperr.OracleError{Reason: "backend unavailable"}
	}}
	m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Oreo"), match.DefaultPolicy())

	_, err := m.FindMatch(context.Background(), userImage())
	if !apperr.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

// stalledClient never answers; it waits for the caller's deadline.
type stalledClient struct{}

func (stalledClient) Generate(ctx context.Context, _ []oracle.Part, _ *oracle.Schema) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFindMatchGatherDeadline(t *testing.T) {
	policy := match.DefaultPolicy()
	policy.Timeout = 20 * time.Millisecond
	m := match.NewMatcher(stalledClient{}, imaging.NewEncoder(), newRoster(t, "Oreo", "Twix"), policy)

	start := time.Now()
	res, err := m.FindMatch(context.Background(), userImage())
	if res != nil {
		t.Fatal("expected no result when the gather deadline elapses")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("gather was not cancelled by the deadline, took %v", elapsed)
	}
}

func TestFindMatchRejectsBadUserImage(t *testing.T) {
	stub := &testutil.OracleStub{Respond: func([]oracle.Part, *oracle.Schema) ([]byte, error) {
		t.Error("oracle must not be called when the user image fails to encode")
		return nil, nil
	}}
	m := match.NewMatcher(stub, imaging.NewEncoder(), newRoster(t, "Oreo"), match.DefaultPolicy())

	_, err := m.FindMatch(context.Background(), imaging.BlobSource{Bytes: nil, MediaType: "image/png"})
	var eerr *apperr.EncodingError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected *apperr.EncodingError, got %v", err)
	}
}
