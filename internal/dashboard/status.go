// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package dashboard

import (
	"fmt"

	"github.com/searchbridge/adaptor/internal/journal"
)

// Code grades one health indicator.
type Code int

const (
	StatusInactive Code = iota
	StatusUnavailable
	StatusNormal
	StatusWarning
	StatusError
)

func (c Code) String() string {
	switch c {
	case StatusInactive:
		return "INACTIVE"
	case StatusUnavailable:
		return "UNAVAILABLE"
	case StatusNormal:
		return "NORMAL"
	case StatusWarning:
		return "WARNING"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Status is one indicator reading.
type Status struct {
	Source  string `json:"source"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Source produces one health indicator.
type Source interface {
	Name() string
	Status() Status
}

// Monitor aggregates sources for the getStatuses RPC.
type Monitor struct {
	sources []Source
}

// NewMonitor builds a monitor over the given sources, evaluated in order.
func NewMonitor(sources ...Source) *Monitor {
	return &Monitor{sources: sources}
}

// Statuses evaluates every source.
func (m *Monitor) Statuses() []Status {
	out := make([]Status, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s.Status())
	}
	return out
}

// Retriever error-rate thresholds over the journal's rolling sample.
const (
	retrieverWarnRate  = 1.0 / 16
	retrieverErrorRate = 1.0 / 8
)

// JournalSources returns the built-in indicators: last push outcome,
// retriever error rate, and whether the appliance crawled recently.
func JournalSources(j *journal.Journal) []Source {
	return []Source{
		lastPushSource{j},
		retrieverSource{j},
		crawlSource{j},
	}
}

type lastPushSource struct{ j *journal.Journal }

func (s lastPushSource) Name() string { return "feed-push" }

func (s lastPushSource) Status() Status {
	st := Status{Source: s.Name()}
	switch s.j.LastPushResult() {
	case journal.PushSuccess:
		st.Code = StatusNormal.String()
	case journal.PushInterruption:
		st.Code = StatusWarning.String()
		st.Message = "last full push was interrupted"
	case journal.PushFailure:
		st.Code = StatusError.String()
		st.Message = "last full push failed"
	default:
		st.Code = StatusInactive.String()
		st.Message = "no full push has run yet"
	}
	return st
}

type retrieverSource struct{ j *journal.Journal }

func (s retrieverSource) Name() string { return "retriever" }

func (s retrieverSource) Status() Status {
	st := Status{Source: s.Name()}
	rate, sample := s.j.RetrieverErrorRate()
	switch {
	case sample == 0:
		st.Code = StatusInactive.String()
		st.Message = "no documents retrieved yet"
	case rate >= retrieverErrorRate:
		st.Code = StatusError.String()
		st.Message = fmt.Sprintf("%.1f%% of the last %d retrievals failed", rate*100, sample)
	case rate >= retrieverWarnRate:
		st.Code = StatusWarning.String()
		st.Message = fmt.Sprintf("%.1f%% of the last %d retrievals failed", rate*100, sample)
	default:
		st.Code = StatusNormal.String()
	}
	return st
}

type crawlSource struct{ j *journal.Journal }

func (s crawlSource) Name() string { return "appliance-crawl" }

func (s crawlSource) Status() Status {
	st := Status{Source: s.Name()}
	if s.j.HasGsaCrawledWithinLastDay() {
		st.Code = StatusNormal.String()
	} else {
		st.Code = StatusWarning.String()
		st.Message = "appliance has not fetched any document in the last day"
	}
	return st
}
