package models

import (
	"fmt"
	"slices"
)

type PollOption struct {
	Text   string   `json:"text"`
	Voters []string `json:"votes"`
	Count  int      `json:"count"`
}

type Poll struct {
	Question string       `json:"question"`
	Options  []PollOption `json:"options"`
}

func NewPoll(question string, options []string) Poll {
	p := Poll{Question: question, Options: make([]PollOption, 0, len(options))}
	for _, text := range options {
		p.Options = append(p.Options, PollOption{Text: text, Voters: []string{}})
	}
	return p
}

func (p Poll) Clone() Poll {
	out := Poll{Question: p.Question, Options: make([]PollOption, len(p.Options))}
	for i, opt := range p.Options {
		out.Options[i] = PollOption{Text: opt.Text, Voters: slices.Clone(opt.Voters), Count: opt.Count}
	}
	return out
}

// Vote moves voter's single vote to option. A voter already on option is a
// no-op and reports changed == false.
func (p *Poll) Vote(option int, voter string) (bool, error) {
	if option < 0 || option >= len(p.Options) {
		return false, fmt.Errorf("%w: %d of %d", ErrOptionRange, option, len(p.Options))
	}
	if slices.Contains(p.Options[option].Voters, voter) {
		return false, nil
	}
	for i := range p.Options {
		p.Options[i].Voters = slices.DeleteFunc(p.Options[i].Voters, func(v string) bool { return v == voter })
	}
	p.Options[option].Voters = append(p.Options[option].Voters, voter)
	p.recount()
	return true, nil
}

func (p *Poll) recount() {
	for i := range p.Options {
		p.Options[i].Count = len(p.Options[i].Voters)
	}
}

func (p Poll) Counts() []int {
	counts := make([]int, len(p.Options))
	for i, opt := range p.Options {
		counts[i] = opt.Count
	}
	return counts
}

func (p Poll) TotalVotes() int {
	total := 0
	for _, opt := range p.Options {
		total += opt.Count
	}
	return total
}
