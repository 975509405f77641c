package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPoll(votes ...int) *Poll {
	p := &Poll{ID: "p1", Question: "Lunch?"}
	for i, v := range votes {
		p.Options = append(p.Options, PollOption{ID: string(rune('a' + i)), Votes: v})
		p.TotalVotes += v
	}
	return p
}

func percentages(p *Poll) []float64 {
	out := make([]float64, len(p.Options))
	for i, o := range p.Options {
		out[i] = o.Percentage
	}
	return out
}

func TestPollRecompute(t *testing.T) {
	p := newTestPoll(15, 12, 8, 5)
	p.Recompute()
	assert.InDeltaSlice(t, []float64{37.5, 30, 20, 12.5}, percentages(p), 1e-9)

	// one vote moves from the first option to the second
	p.Options[0].Votes = 14
	p.Options[1].Votes = 13
	p.Recompute()
	assert.Equal(t, 40, p.TotalVotes)
	assert.InDeltaSlice(t, []float64{35, 32.5, 20, 12.5}, percentages(p), 1e-9)
}

func TestPollRecomputeNoVotes(t *testing.T) {
	p := newTestPoll(0, 0)
	p.Options[0].Percentage = 50
	p.Recompute()
	assert.Equal(t, []float64{0, 0}, percentages(p))
}

func TestPollApplyVoteReplacesSelection(t *testing.T) {
	p := newTestPoll(15, 12, 8, 5)
	p.MyVotes = []string{"a"}

	p.ApplyVote([]string{"b"})
	assert.Equal(t, 14, p.Options[0].Votes)
	assert.Equal(t, 13, p.Options[1].Votes)
	assert.Equal(t, 40, p.TotalVotes)
	assert.Equal(t, []string{"b"}, p.MyVotes)
	assert.InDeltaSlice(t, []float64{35, 32.5, 20, 12.5}, percentages(p), 1e-9)

	p.ApplyVote(nil)
	assert.Equal(t, 12, p.Options[1].Votes)
	assert.Equal(t, 39, p.TotalVotes)
	assert.Empty(t, p.MyVotes)
}

func TestPollApplyVoteIgnoresUnknownOptions(t *testing.T) {
	p := newTestPoll(1, 1)
	p.ApplyVote([]string{"zz", "a"})
	assert.Equal(t, []string{"a"}, p.MyVotes)
	assert.Equal(t, 3, p.TotalVotes)
}
