package volume

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/rulebook/internal/llm"
	"github.com/hyperjump/rulebook/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBeamWidth is the number of volumes kept when the caller does not choose.
const DefaultBeamWidth = 3

const (
	perfectScore = 1.0
	pruneCeiling = 0.7
)

var scorePattern = regexp.MustCompile(`\d*\.?\d+`)

// Selector scores every registered volume against a query and keeps the best few.
type Selector struct {
	completer   llm.Completer
	volumes     []Descriptor
	logger      *zap.Logger
	metrics     *metrics.Metrics
	concurrency int
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SelectorOption {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records scoring calls.
func WithMetrics(m *metrics.Metrics) SelectorOption {
	return func(s *Selector) { s.metrics = m }
}

// WithConcurrency scores up to n volumes at once. n <= 1 scores sequentially.
func WithConcurrency(n int) SelectorOption {
	return func(s *Selector) { s.concurrency = n }
}

// WithVolumes replaces the registry.
func WithVolumes(v []Descriptor) SelectorOption {
	return func(s *Selector) { s.volumes = v }
}

// NewSelector creates a selector over the default registry.
func NewSelector(completer llm.Completer, opts ...SelectorOption) *Selector {
	s := &Selector{
		completer:   completer,
		volumes:     Registry(),
		logger:      zap.NewNop(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Volumes returns the descriptors this selector scores.
func (s *Selector) Volumes() []Descriptor {
	return s.volumes
}

// Select scores every volume, prunes, and returns at most beamWidth volumes by score descending.
// When any volume scores exactly 1.0, volumes scoring 0.7 or less are dropped first.
// A completion error fails the whole selection.
func (s *Selector) Select(ctx context.Context, query string, beamWidth int) ([]Scored, error) {
	if beamWidth <= 0 {
		return []Scored{}, nil
	}
	scores, err := s.scoreAll(ctx, query)
	if err != nil {
		return nil, err
	}

	scored := make([]Scored, len(s.volumes))
	for i, d := range s.volumes {
		scored[i] = Scored{Descriptor: d, Score: scores[i]}
	}
	scored = prune(scored)
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > beamWidth {
		scored = scored[:beamWidth]
	}

	names := make([]string, len(scored))
	for i, v := range scored {
		names[i] = v.Descriptor.Name
	}
	s.logger.Info("selected volumes", zap.Strings("volumes", names))
	return scored, nil
}

func (s *Selector) scoreAll(ctx context.Context, query string) ([]float64, error) {
	scores := make([]float64, len(s.volumes))
	if s.concurrency <= 1 {
		for i, d := range s.volumes {
			score, err := s.score(ctx, query, d)
			if err != nil {
				return nil, err
			}
			scores[i] = score
		}
		return scores, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, d := range s.volumes {
		i, d := i, d
		g.Go(func() error {
			score, err := s.score(gctx, query, d)
			if err != nil {
				return err
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (s *Selector) score(ctx context.Context, query string, d Descriptor) (float64, error) {
	resp, err := s.completer.Complete(ctx, Prompt(query, d))
	if err != nil {
		return 0, fmt.Errorf("score volume %q: %w", d.Name, err)
	}
	score, ok := ParseScore(resp)
	s.metrics.RecordVolumeScore(ok)
	if !ok {
		s.logger.Warn("unparsable volume score, using 0",
			zap.String("volume", d.Name),
			zap.String("response", resp))
	}
	s.logger.Debug("volume scored", zap.String("volume", d.Name), zap.Float64("score", score))
	return score, nil
}

// Prompt builds the scoring prompt for one volume.
func Prompt(query string, d Descriptor) string {
	var b strings.Builder
	b.WriteString("You are an expert legal assistant.\n")
	fmt.Fprintf(&b, "User query: %s\n", query)
	fmt.Fprintf(&b, "Volume: %s\n", d.Name)
	fmt.Fprintf(&b, "Description: %s\n\n", d.Description)
	b.WriteString("Respond with only a score between 0.0 and 1.0, where 1.0 means the query's subject is " +
		"mentioned in the volume name or description, and 0.0 means it is extremely unlikely to be found in the volume.")
	return b.String()
}

// ParseScore returns the first unsigned number in resp as is, so a reply above 1 stays above 1
// and never counts as a perfect score. ok is false when resp has no number.
func ParseScore(resp string) (score float64, ok bool) {
	m := scorePattern.FindString(resp)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// prune drops every volume scoring at or below the ceiling when any volume has a perfect score.
func prune(scored []Scored) []Scored {
	perfect := false
	for _, v := range scored {
		if v.Score == perfectScore {
			perfect = true
			break
		}
	}
	if !perfect {
		return scored
	}
	kept := scored[:0]
	for _, v := range scored {
		if v.Score > pruneCeiling {
			kept = append(kept, v)
		}
	}
	return kept
}
