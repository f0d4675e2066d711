// Package split partitions a corpus into named subsets with a seeded
// shuffle. The partition depends only on the set of image identifiers and
// the seed: input order, map iteration order and platform never change it.
package split

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// Subset names, in the order they are written.
const (
	Train = "train"
	Val   = "val"
	Test  = "test"
)

// ErrEmptyCorpus is returned when there is nothing to split.
var ErrEmptyCorpus = errors.New("corpus is empty")

// seedMix derives the second PCG word from the seed.
const seedMix = 0x9e3779b97f4a7c15

// countEpsilon keeps floor(f*M) from dropping an image when f*M lands a
// hair below an integer (0.8*10 = 7.999...).
const countEpsilon = 1e-9

// Ratios are the train and test fractions; validation receives the rest.
type Ratios struct {
	Train float64
	Test  float64
}

// Validate checks 0 < Train < 1, 0 <= Test < 1 and Train+Test < 1.
func (r Ratios) Validate() error {
	switch {
	case math.IsNaN(r.Train) || r.Train <= 0 || r.Train >= 1:
		return fmt.Errorf("train ratio %v must be in (0, 1)", r.Train)
	case math.IsNaN(r.Test) || r.Test < 0 || r.Test >= 1:
		return fmt.Errorf("test ratio %v must be in [0, 1)", r.Test)
	case r.Train+r.Test >= 1:
		return fmt.Errorf("train ratio %v + test ratio %v leaves no validation images", r.Train, r.Test)
	}
	return nil
}

// Assignment maps subset name to the sorted image identifiers it holds.
type Assignment map[string][]int64

// Names returns the non-empty subset names in write order.
func (a Assignment) Names() []string {
	var names []string
	for _, n := range []string{Train, Val, Test} {
		if len(a[n]) > 0 {
			names = append(names, n)
		}
	}
	return names
}

// Of returns the subset holding id, or "" when id is not assigned.
func (a Assignment) Of(id int64) string {
	for name, ids := range a {
		if _, ok := slices.BinarySearch(ids, id); ok {
			return name
		}
	}
	return ""
}

// Counts returns the size of each subset.
func (a Assignment) Counts() map[string]int {
	out := make(map[string]int, len(a))
	for name, ids := range a {
		out[name] = len(ids)
	}
	return out
}

// Split partitions ids. The ids are copied and sorted before the seeded
// Fisher-Yates shuffle; the first floor(Train*M) shuffled ids go to train,
// the next floor(Test*M) to test and the rest to val. With two or more
// images, train and val are never empty. A single image goes to train.
func Split(ids []int64, ratios Ratios, seed uint64) (Assignment, error) {
	if err := ratios.Validate(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrEmptyCorpus
	}

	order := slices.Clone(ids)
	slices.Sort(order)
	if d := duplicate(order); d != nil {
		return nil, fmt.Errorf("duplicate image id %d", *d)
	}
	shuffle(order, seed)

	m := len(order)
	nTrain, nTest := counts(m, ratios)

	a := Assignment{
		Train: sorted(order[:nTrain]),
		Test:  sorted(order[nTrain : nTrain+nTest]),
		Val:   sorted(order[nTrain+nTest:]),
	}
	return a, nil
}

func counts(m int, r Ratios) (train, test int) {
	if m == 1 {
		return 1, 0
	}
	train = int(math.Floor(r.Train*float64(m) + countEpsilon))
	train = max(1, min(train, m-1))
	test = int(math.Floor(r.Test*float64(m) + countEpsilon))
	test = max(0, min(test, m-train-1))
	return train, test
}

// shuffle is Fisher-Yates over a PCG source. Indices come from Uint64 with
// rejection sampling so the sequence does not depend on how a given Go
// release implements rand.Shuffle or IntN.
func shuffle(ids []int64, seed uint64) {
	src := rand.NewPCG(seed, seed^seedMix)
	for i := len(ids) - 1; i > 0; i-- {
		j := uniform(src, uint64(i+1))
		ids[i], ids[j] = ids[j], ids[i]
	}
}

func uniform(src *rand.PCG, n uint64) uint64 {
	limit := math.MaxUint64 - math.MaxUint64%n
	for {
		v := src.Uint64()
		if v < limit {
			return v % n
		}
	}
}

func sorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	if out == nil {
		out = []int64{}
	}
	return out
}

func duplicate(sortedIDs []int64) *int64 {
	for i := 1; i < len(sortedIDs); i++ {
		if sortedIDs[i] == sortedIDs[i-1] {
			return &sortedIDs[i]
		}
	}
	return nil
}
