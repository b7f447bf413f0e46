package analysis

import (
	"context"
	"math/rand"
	"sync"

	"fx-trader/internal/models"
)

// StubAnalyzer is a seeded pseudo-random stand-in for analysis that is
// not available. Its verdicts are labelled as synthetic and it is only
// built when analyzers.stub.enabled is set.
type StubAnalyzer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewStubAnalyzer creates a stub analyzer with a fixed seed.
func NewStubAnalyzer(seed int64) *StubAnalyzer {
	return &StubAnalyzer{rng: rand.New(rand.NewSource(seed))}
}

func (s *StubAnalyzer) Name() string { return "stub" }

func (s *StubAnalyzer) Analyze(_ context.Context, _ Input) (models.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirs := []models.Direction{models.DirectionBuy, models.DirectionSell, models.DirectionNeutral}
	dir := dirs[s.rng.Intn(len(dirs))]
	if dir == models.DirectionNeutral {
		return models.Neutral(s.Name(), "stub: synthetic"), nil
	}
	return models.Verdict{
		Direction:  dir,
		Confidence: 40 + s.rng.Float64()*40,
		Reason:     "stub: synthetic",
	}, nil
}
