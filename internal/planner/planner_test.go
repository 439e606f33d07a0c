package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPlannerWrapScenario is end-to-end scenario S5.
func TestPlannerWrapScenario(t *testing.T) {
	start, end, filled := 995, 5, 1000
	total := end - start
	if start > end {
		total = filled - start + end - 1
	}
	assert.Equal(t, 9, total)

	downloaded := 0
	wrapped := false

	if start+downloaded >= filled {
		wrapped = true
	}
	locToStart, locToRead := nextLeg(start, end, filled, downloaded, wrapped)
	assert.Equal(t, 995, locToStart)
	assert.Equal(t, 5, locToRead)
	downloaded += locToRead

	if start+downloaded >= filled {
		wrapped = true
	}
	locToStart, locToRead = nextLeg(start, end, filled, downloaded, wrapped)
	assert.Equal(t, 1, locToStart)
	assert.Equal(t, 4, locToRead)
	downloaded += locToRead

	assert.Equal(t, total, downloaded)
}

// TestRingPlannerCoverage checks that the planner's legs cover every
// location from start up to end-1 in the forward direction, for a sweep
// of (start, end, filled) triples. Like Download's total, the walk
// treats location filled as the wrap point: it is not part of the
// window, and the location after filled-1 is 1 (995..999 then 1..4 for
// start=995, end=5, filled=1000).
func TestRingPlannerCoverage(t *testing.T) {
	filled := 100
	for start := 1; start <= filled; start++ {
		for end := 1; end <= filled; end++ {
			if start == end {
				continue
			}
			total := end - start
			if start > end {
				total = filled - start + end - 1
			}
			downloaded := 0
			wrapped := false
			covered := make([]bool, filled+1)
			for downloaded < total {
				if start+downloaded >= filled {
					wrapped = true
				}
				locToStart, locToRead := nextLeg(start, end, filled, downloaded, wrapped)
				assert.Greater(t, locToRead, 0, "start=%d end=%d downloaded=%d", start, end, downloaded)
				for i := 0; i < locToRead; i++ {
					loc := locToStart + i
					if loc > filled {
						loc -= filled
					}
					covered[loc] = true
				}
				downloaded += locToRead
			}
			loc := start
			for i := 0; i < total; i++ {
				if loc >= filled {
					loc = 1
				}
				assert.True(t, covered[loc], "start=%d end=%d missing loc=%d", start, end, loc)
				loc++
			}
		}
	}
}

// TestSalvageAlignment checks that a salvaged download always ends on
// a whole-record boundary.
func TestSalvageAlignment(t *testing.T) {
	downloaded, end := salvage(237, 995, 1000, 50)
	assert.Equal(t, 0, downloaded%50)
	assert.Equal(t, (995+200)%1000, end)
	assert.Equal(t, 200, downloaded)
}
