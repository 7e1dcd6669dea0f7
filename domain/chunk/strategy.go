package chunk

import (
	"fmt"

	"github.com/laserpointlabs/odras/domain"
)

// Strategy selects where chunk boundaries fall.
type Strategy string

// Strategy values.
const (
	StrategyFixed            Strategy = "fixed"
	StrategySentenceBoundary Strategy = "sentence-boundary"
	StrategyHybrid           Strategy = "hybrid"
)

// ParseStrategy converts a tag into a Strategy. Unknown tags are a chunking
// error; there is no silent fallback.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyFixed, StrategySentenceBoundary, StrategyHybrid:
		return Strategy(s), nil
	default:
		return "", domain.Wrap(domain.ErrChunking, "parse strategy", fmt.Errorf("unknown strategy %q", s))
	}
}

// String returns the strategy tag.
func (s Strategy) String() string { return string(s) }
