// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tasker

import (
	"regexp"
	"slices"
	"strconv"
)

var numberRe = regexp.MustCompile(`\d+(\.\d+)?`)

// EpisodeNumbers infers the set of downloaded episode numbers from
// release titles by voting across number columns. Each title yields the
// ordered vector of integral numbers it contains; the first column whose
// values look episode-like (no value repeated three or more times) is
// taken as the episode column. Fewer than three titles is not enough
// signal and yields nil.
func EpisodeNumbers(titles []string) []int64 {
	if len(titles) < 3 {
		return nil
	}

	vectors := make([][]int64, 0, len(titles))
	for _, title := range titles {
		var vec []int64
		for _, match := range numberRe.FindAllString(title, -1) {
			f, err := strconv.ParseFloat(match, 64)
			if err != nil || f != float64(int64(f)) {
				continue
			}
			vec = append(vec, int64(f))
		}
		vectors = append(vectors, vec)
	}

	k := len(vectors[0])
	for _, vec := range vectors {
		if len(vec) < k {
			k = len(vec)
		}
	}

	for c := 0; c < k; c++ {
		counts := make(map[int64]int, len(vectors))
		column := make([]int64, 0, len(vectors))
		for _, vec := range vectors {
			counts[vec[c]]++
			column = append(column, vec[c])
		}

		// a column dominated by one value is a resolution or a group
		// tag, not an episode number
		repeated := false
		for _, n := range counts {
			if n >= 3 {
				repeated = true
				break
			}
		}
		if repeated {
			continue
		}

		slices.Sort(column)
		return slices.Compact(column)
	}
	return nil
}
