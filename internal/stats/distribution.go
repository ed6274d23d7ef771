// Package stats maintains per-day score distributions and answers snapshot queries.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Snapshot summarises one day's distribution, optionally ranked against a score.
type Snapshot struct {
	TotalPlayers int     `json:"totalPlayers"`
	AverageScore float64 `json:"averageScore"`
	TopScore     int     `json:"topScore"`
	// Percentile is nil only when the distribution is empty. 0 is a real value.
	Percentile *int `json:"percentile"`
}

// Bucket counts how many submissions carried Score.
type Bucket struct {
	Score int   `json:"score"`
	Count int64 `json:"count"`
}

// Distribution is an immutable multiset of scores.
type Distribution struct {
	buckets []Bucket
	total   int64
	sum     int64
}

// NewDistribution builds a distribution from buckets in any order. Buckets with the same
// score are merged; non-positive counts are ignored.
func NewDistribution(buckets []Bucket) Distribution {
	merged := make(map[int]int64, len(buckets))
	for _, b := range buckets {
		if b.Count > 0 {
			merged[b.Score] += b.Count
		}
	}

	d := Distribution{buckets: make([]Bucket, 0, len(merged))}
	for score, count := range merged {
		d.buckets = append(d.buckets, Bucket{Score: score, Count: count})
		d.total += count
		d.sum += int64(score) * count
	}
	sort.Slice(d.buckets, func(i, j int) bool { return d.buckets[i].Score < d.buckets[j].Score })
	return d
}

// Total returns the number of recorded scores.
func (d Distribution) Total() int64 { return d.total }

// Buckets returns a copy of the buckets in ascending score order.
func (d Distribution) Buckets() []Bucket {
	out := make([]Bucket, len(d.buckets))
	copy(out, d.buckets)
	return out
}

// Top returns the highest recorded score, or 0 when empty.
func (d Distribution) Top() int {
	if len(d.buckets) == 0 {
		return 0
	}
	return d.buckets[len(d.buckets)-1].Score
}

// Average returns the mean score rounded half away from zero to two places.
func (d Distribution) Average() float64 {
	if d.total == 0 {
		return 0
	}
	return decimal.NewFromInt(d.sum).DivRound(decimal.NewFromInt(d.total), 2).InexactFloat64()
}

// Percentile returns floor(100 * count(scores < score) / total), or nil when empty.
func (d Distribution) Percentile(score int) *int {
	if d.total == 0 {
		return nil
	}

	var below int64
	for _, b := range d.buckets {
		if b.Score >= score {
			break
		}
		below += b.Count
	}

	p := int(below * 100 / d.total)
	return &p
}

// Summary returns the snapshot without a percentile.
func (d Distribution) Summary() Snapshot {
	return Snapshot{
		TotalPlayers: int(d.total),
		AverageScore: d.Average(),
		TopScore:     d.Top(),
	}
}

// Snapshot returns the summary ranked against score.
func (d Distribution) Snapshot(score int) Snapshot {
	s := d.Summary()
	s.Percentile = d.Percentile(score)
	return s
}
