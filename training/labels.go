package training

import (
	"sort"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

// InvalidLabel marks samples that take part in reconstruction but not in
// the classification loss.
const InvalidLabel = -1

// EncodeLabels maps labels onto indices into the sorted set of valid classes.
// InvalidLabel is kept as -1. The input slice is not modified.
func EncodeLabels(labels []int) (classes []int, encoded []int, err error) {
	valid := lo.Filter(labels, func(l int, _ int) bool { return l != InvalidLabel })
	classes = lo.Uniq(valid)
	sort.Ints(classes)
	if len(classes) < 2 {
		return nil, nil, errors.NotValidf("%d distinct valid labels, at least 2 required", len(classes))
	}
	for _, c := range classes {
		if c < 0 {
			return nil, nil, errors.NotValidf("label %d", c)
		}
	}

	encoded = make([]int, len(labels))
	for i, l := range labels {
		if l == InvalidLabel {
			encoded[i] = InvalidLabel
			continue
		}
		encoded[i] = sort.SearchInts(classes, l)
	}
	return classes, encoded, nil
}

// UniqueGroups returns the sorted distinct values of groups.
func UniqueGroups(groups []int) []int {
	unique := lo.Uniq(groups)
	sort.Ints(unique)
	return unique
}

// EncodeGroups maps groups onto indices into known, which must be sorted.
// Groups missing from known map to -1.
func EncodeGroups(groups, known []int) []int {
	encoded := make([]int, len(groups))
	for i, g := range groups {
		j := sort.SearchInts(known, g)
		if j < len(known) && known[j] == g {
			encoded[i] = j
		} else {
			encoded[i] = -1
		}
	}
	return encoded
}

// StrictlyIncreasing reports whether ids is sorted without duplicates, the
// form produced by EncodeLabels and UniqueGroups.
func StrictlyIncreasing(ids []int) bool {
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			return false
		}
	}
	return true
}
