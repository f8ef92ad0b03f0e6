package analysis

import (
	"cmp"
	"encoding/json"
	"iter"
	"slices"
	"strconv"
	"strings"
)

// NoFacialExpressions is the text form of the no-data distribution.
const NoFacialExpressions = "No facial expressions detected"

// NoiseThreshold is the proportion below which a label is likely classifier
// noise. It is only ever used to annotate; Aggregate never filters on it.
const NoiseThreshold = 0.06

// Share is one label's slice of a distribution.
type Share struct {
	Emotion    string  `json:"emotion"`
	Count      int     `json:"count"`
	Proportion float64 `json:"proportion"`
}

// Distribution is the proportion of sampled frames whose dominant emotion was
// each label. The zero value is the no-data sentinel; check NoData before
// treating it as a mapping.
type Distribution struct {
	total  int
	counts map[string]int
}

// Aggregate reduces per-frame records to a distribution. Record order does
// not matter and the result is the same on every call.
func Aggregate(records []FrameEmotionRecord) Distribution {
	return AggregateSeq(slices.Values(records))
}

func AggregateSeq(records iter.Seq[FrameEmotionRecord]) Distribution {
	var d Distribution
	for r := range records {
		if d.counts == nil {
			d.counts = make(map[string]int)
		}
		d.counts[r.Dominant]++
		d.total++
	}
	return d
}

// DistributionFromCounts rebuilds a distribution from stored label counts.
func DistributionFromCounts(counts map[string]int) Distribution {
	var d Distribution
	for label, n := range counts {
		if n <= 0 {
			continue
		}
		if d.counts == nil {
			d.counts = make(map[string]int, len(counts))
		}
		d.counts[label] = n
		d.total += n
	}
	return d
}

func (d Distribution) NoData() bool { return d.total == 0 }

// Total is the number of records the distribution was built from.
func (d Distribution) Total() int { return d.total }

func (d Distribution) Proportion(emotion string) float64 {
	if d.total == 0 {
		return 0
	}
	return float64(d.counts[emotion]) / float64(d.total)
}

// Counts returns a copy of the per-label record counts.
func (d Distribution) Counts() map[string]int {
	if d.total == 0 {
		return nil
	}
	out := make(map[string]int, len(d.counts))
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}

// Shares lists labels by descending proportion, ties broken by label.
func (d Distribution) Shares() []Share {
	if d.total == 0 {
		return nil
	}
	out := make([]Share, 0, len(d.counts))
	for label, n := range d.counts {
		out = append(out, Share{Emotion: label, Count: n, Proportion: float64(n) / float64(d.total)})
	}
	slices.SortFunc(out, func(a, b Share) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Emotion, b.Emotion)
	})
	return out
}

// Chart is the label -> fraction mapping for rendering. It is nil for no data.
func (d Distribution) Chart() map[string]float64 {
	if d.total == 0 {
		return nil
	}
	out := make(map[string]float64, len(d.counts))
	for label := range d.counts {
		out[label] = d.Proportion(label)
	}
	return out
}

// LowSignal lists labels under NoiseThreshold, most frequent first.
func (d Distribution) LowSignal() []string {
	var out []string
	for _, s := range d.Shares() {
		if s.Proportion < NoiseThreshold {
			out = append(out, s.Emotion)
		}
	}
	return out
}

// String renders "label: fraction" pairs in Shares order, or
// NoFacialExpressions for no data.
func (d Distribution) String() string {
	if d.total == 0 {
		return NoFacialExpressions
	}
	shares := d.Shares()
	parts := make([]string, len(shares))
	for i, s := range shares {
		parts[i] = s.Emotion + ": " + strconv.FormatFloat(s.Proportion, 'f', 4, 64)
	}
	return strings.Join(parts, ", ")
}

func (d Distribution) MarshalJSON() ([]byte, error) {
	if d.total == 0 {
		return json.Marshal(NoFacialExpressions)
	}
	return json.Marshal(d.Chart())
}
