package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"fx-trader/internal/models"
)

// ConfluenceAnalyzer measures how many timeframes agree on a trend.
// Higher timeframes carry more weight.
type ConfluenceAnalyzer struct {
	fast, slow int
}

// NewConfluenceAnalyzer creates a confluence analyzer using EMA 20/50.
func NewConfluenceAnalyzer() *ConfluenceAnalyzer {
	return &ConfluenceAnalyzer{fast: 20, slow: 50}
}

func (c *ConfluenceAnalyzer) Name() string { return "confluence" }

func (c *ConfluenceAnalyzer) Analyze(_ context.Context, in Input) (models.Verdict, error) {
	tfs := make([]models.Timeframe, 0, len(in.Bars))
	for tf, bars := range in.Bars {
		if len(bars) >= c.slow {
			tfs = append(tfs, tf)
		}
	}
	if len(tfs) < 2 {
		return models.Neutral(c.Name(), fmt.Sprintf("%d usable timeframes", len(tfs))), nil
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Duration() < tfs[j].Duration() })

	var bull, bear, total float64
	parts := make([]string, 0, len(tfs))
	for i, tf := range tfs {
		weight := float64(i + 1)
		total += weight
		switch emaBias(in.Bars[tf], c.fast, c.slow) {
		case 1:
			bull += weight
			parts = append(parts, string(tf)+"+")
		case -1:
			bear += weight
			parts = append(parts, string(tf)+"-")
		default:
			parts = append(parts, string(tf)+"=")
		}
	}

	reason := strings.Join(parts, " ")
	switch {
	case bull > bear && bull*2 >= total:
		return models.Verdict{Direction: models.DirectionBuy, Confidence: 100 * bull / total, Reason: reason}, nil
	case bear > bull && bear*2 >= total:
		return models.Verdict{Direction: models.DirectionSell, Confidence: 100 * bear / total, Reason: reason}, nil
	}
	return models.Neutral(c.Name(), "no confluence: "+reason), nil
}
