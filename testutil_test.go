package probgen

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// fakeGateway scripts model responses per stage and records every request.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []GatewayRequest
	handler func(req GatewayRequest) (GatewayResponse, error)
}

func (f *fakeGateway) Generate(ctx context.Context, req GatewayRequest) (GatewayResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.handler == nil {
		return GatewayResponse{}, fmt.Errorf("no handler for stage %s", req.Stage)
	}
	return f.handler(req)
}

func (f *fakeGateway) callCount(stage Stage) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Stage == stage {
			n++
		}
	}
	return n
}

func (f *fakeGateway) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeEmbedder returns a fixed vector, or a scripted error.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.vec != nil {
		return f.vec, nil
	}
	return []float32{1, 0, 0}, nil
}

// mcProblem builds a shape-valid multiple choice problem with the given
// self-critique score.
func mcProblem(question string, score float64) GeneratedProblem {
	return GeneratedProblem{
		Question: question,
		Type:     TypeMultipleChoice,
		Options: []string{
			"the virtual DOM diffing pass",
			"a synchronous full re-render",
			"direct DOM mutation on setState",
			"an eager layout recalculation",
		},
		Answer:      "the virtual DOM diffing pass",
		Explanation: "Reconciliation diffs the virtual DOM and applies the minimal set of real DOM updates.",
		Difficulty:  "medium",
		SelfCritique: &SelfCritique{
			QualityScore: score,
		},
	}
}

// problemsPayload serializes problems as submit_problems tool arguments.
func problemsPayload(problems ...GeneratedProblem) string {
	raw, err := json.Marshal(map[string]interface{}{"problems": problems})
	if err != nil {
		panic(err)
	}
	return string(raw)
}

func validationPayload(score float64, reject bool, reason string) string {
	raw, err := json.Marshal(validationVerdict{Score: score, RecommendReject: reject, Reason: reason})
	if err != nil {
		panic(err)
	}
	return string(raw)
}

func sample(id, domain, subdomain string, origin SampleOrigin, keywords ...string) ReferenceSample {
	return ReferenceSample{
		ID:           id,
		Domain:       domain,
		Subdomain:    subdomain,
		Problem:      mcProblem("what does reconciliation in "+id+" do?", 9),
		Embedding:    []float32{1, 0, 0},
		QualityScore: 9,
		Keywords:     keywords,
		Origin:       origin,
	}
}
