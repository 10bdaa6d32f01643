package span

import "sort"

// clamp restricts n to [0, max], per the closed-form SelfDuration formula
// (spec §4.3).
func clamp(n, max int64) int64 {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// SelfDuration computes a span's duration minus the time covered by its
// children, per spec §4.3. children need not be pre-sorted; this sorts a
// copy by start time.
func SelfDuration(s *Span, children []*Span) int64 {
	sorted := make([]*Span, len(children))
	copy(sorted, children)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })

	sum := s.Duration
	spanEnd := s.EndTime()
	maxEnd := s.StartTime

	for _, child := range sorted {
		childEnd := child.EndTime()
		coveredByPrior := clamp(maxEnd-child.StartTime, child.Duration)
		pastParent := clamp(childEnd-spanEnd, child.Duration)
		alreadyPastParent := clamp(maxEnd-spanEnd, child.Duration)
		sum -= child.Duration - coveredByPrior - pastParent + alreadyPastParent
		if childEnd > maxEnd {
			maxEnd = childEnd
		}
	}
	return sum
}
