// Package narration models the structured per-page, per-region narration
// data consumed by the segment builder and persisted by the stores.
package narration

import (
	"errors"
	"fmt"
	"math"
)

var ErrEmpty = errors.New("narration contains no parts")

// Document is the ordered list of pages of one source document.
type Document []Page

// Page groups the detected regions of one source page in reading order.
type Page struct {
	Name    string   `yaml:"name"`
	Regions []Region `yaml:"regions"`
}

// Region is one detected content region of a page.
type Region struct {
	Name       string    `yaml:"name"`
	PageImage  string    `yaml:"page_image"`
	Crop       string    `yaml:"crop"`
	Transcript string    `yaml:"transcript"`
	Headings   []Heading `yaml:"headings"`
}

// Heading holds the narrated parts spoken under one heading label.
type Heading struct {
	Label string `yaml:"label"`
	Parts []Part `yaml:"parts"`
}

// Part is one narrated sub-segment: a summary, its audio and duration.
type Part struct {
	Summary    string   `yaml:"summary"`
	AudioRef   string   `yaml:"audio_ref"`
	Duration   float64  `yaml:"duration"`
	Translated string   `yaml:"translated"`
	Markers    []string `yaml:"markers,omitempty"`
}

// Count returns the number of parts across the whole document.
func (d Document) Count() int {
	n := 0
	for _, p := range d {
		for _, r := range p.Regions {
			for _, h := range r.Headings {
				n += len(h.Parts)
			}
		}
	}
	return n
}

// Regions returns every region of the document in source order.
func (d Document) Regions() []Region {
	var out []Region
	for _, p := range d {
		out = append(out, p.Regions...)
	}
	return out
}

// Validate checks the values a decoder cannot: durations must be finite and
// non-negative. An empty document is reported with ErrEmpty.
func (d Document) Validate() error {
	if d.Count() == 0 {
		return ErrEmpty
	}
	for _, p := range d {
		for _, r := range p.Regions {
			for _, h := range r.Headings {
				for i, part := range h.Parts {
					if math.IsNaN(part.Duration) || math.IsInf(part.Duration, 0) || part.Duration < 0 {
						return fmt.Errorf("page %q region %q heading %q part %d: invalid duration %v",
							p.Name, r.Name, h.Label, i, part.Duration)
					}
				}
			}
		}
	}
	return nil
}

// Prompt returns the text used to synthesize an illustrative image for the
// region: its transcript, or the joined summaries when the transcript is empty.
func (r Region) Prompt() string {
	if r.Transcript != "" {
		return r.Transcript
	}
	var prompt string
	for _, h := range r.Headings {
		for _, p := range h.Parts {
			if p.Summary == "" {
				continue
			}
			if prompt != "" {
				prompt += " "
			}
			prompt += p.Summary
		}
	}
	return prompt
}
