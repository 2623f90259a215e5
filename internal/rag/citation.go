package rag

import (
	"regexp"
	"sort"
	"strconv"
)

var issueRefPattern = regexp.MustCompile(`(?:^|[^\w&])#(\d+)\b`)

// citedNumbers returns the distinct issue numbers an answer mentions as #N, ascending.
func citedNumbers(answer string) []int {
	seen := make(map[int]struct{})
	for _, m := range issueRefPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		seen[n] = struct{}{}
	}

	numbers := make([]int, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// markCited flags the references the answer cites and returns cited numbers not among them.
func markCited(answer string, refs []Reference) []int {
	cited := citedNumbers(answer)
	citedSet := make(map[int]struct{}, len(cited))
	for _, n := range cited {
		citedSet[n] = struct{}{}
	}

	retrieved := make(map[int]struct{}, len(refs))
	for i := range refs {
		retrieved[refs[i].IssueNumber] = struct{}{}
		if _, ok := citedSet[refs[i].IssueNumber]; ok {
			refs[i].Cited = true
		}
	}

	var unknown []int
	for _, n := range cited {
		if _, ok := retrieved[n]; !ok {
			unknown = append(unknown, n)
		}
	}
	return unknown
}
