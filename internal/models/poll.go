package models

import "time"

// Poll is attached to a message of type poll.
type Poll struct {
	ID             string       `json:"id"`
	MessageID      string       `json:"message_id,omitempty"`
	Question       string       `json:"question"`
	Options        []PollOption `json:"options"`
	MultipleChoice bool         `json:"multiple_choice"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	TotalVotes     int          `json:"total_votes"`

	// MyVotes is the current user's selection, replaced wholesale on vote
	MyVotes []string  `json:"my_votes,omitempty"`
	State   SyncState `json:"state,omitempty"`
}

type PollOption struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Votes      int     `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// Recompute refreshes every option's percentage from its votes and TotalVotes.
func (p *Poll) Recompute() {
	for i := range p.Options {
		if p.TotalVotes > 0 {
			p.Options[i].Percentage = float64(p.Options[i].Votes) / float64(p.TotalVotes) * 100
		} else {
			p.Options[i].Percentage = 0
		}
	}
}

// Option returns the option with the given id.
func (p *Poll) Option(id string) (*PollOption, bool) {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i], true
		}
	}
	return nil, false
}

// ApplyVote replaces the current user's selection with optionIDs and adjusts
// the counts. Each selected option counts as one vote toward TotalVotes.
func (p *Poll) ApplyVote(optionIDs []string) {
	for _, id := range p.MyVotes {
		if o, ok := p.Option(id); ok && o.Votes > 0 {
			o.Votes--
			p.TotalVotes--
		}
	}
	selected := make([]string, 0, len(optionIDs))
	for _, id := range optionIDs {
		if o, ok := p.Option(id); ok {
			o.Votes++
			p.TotalVotes++
			selected = append(selected, id)
		}
	}
	if p.TotalVotes < 0 {
		p.TotalVotes = 0
	}
	p.MyVotes = selected
	p.Recompute()
}

// Expired reports whether voting has closed at now.
func (p *Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

func (p *Poll) Clone() *Poll {
	if p == nil {
		return nil
	}
	c := *p
	c.Options = append([]PollOption(nil), p.Options...)
	c.MyVotes = append([]string(nil), p.MyVotes...)
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
