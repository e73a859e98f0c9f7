// Package tokens provides pluggable token counting for the engine.  The
// engine only needs a deterministic-enough cost function; it never assumes a
// specific tokenizer.  The default Estimator approximates subword tokenizers
// by charging one token per four characters of each whitespace-delimited
// unit, which tracks real model tokenizers closely enough for budgeting.
package tokens

import "strings"

// Counter measures the token cost of a piece of text.  Implementations must
// be deterministic: identical input yields an identical count.
type Counter interface {
	Count(text string) int
}

// Estimator is the default Counter.  CharsPerToken defaults to 4.
type Estimator struct {
	CharsPerToken int
}

// NewEstimator returns an Estimator with the default ratio.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4}
}

// Split breaks text into whole token units.  Units are whitespace-delimited;
// truncation operates on these and never cuts inside one.
func Split(text string) []string {
	return strings.Fields(text)
}

// Count returns the estimated token cost of text.
func (e *Estimator) Count(text string) int {
	per := e.CharsPerToken
	if per <= 0 {
		per = 4
	}

	total := 0
	for _, unit := range Split(text) {
		total += 1 + (len(unit)-1)/per
	}

	return total
}

// CountUnit returns the cost of a single unit.
func (e *Estimator) CountUnit(unit string) int {
	per := e.CharsPerToken
	if per <= 0 {
		per = 4
	}
	if unit == "" {
		return 0
	}
	return 1 + (len(unit)-1)/per
}

// Truncate removes whole token units from the end of text until its cost
// fits within max.  It never splits inside a unit.  The result joins the
// surviving units with single spaces, so truncation normalises whitespace.
func (e *Estimator) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if e.Count(text) <= max {
		return text
	}

	units := Split(text)
	budget := max
	kept := make([]string, 0, len(units))

	for _, unit := range units {
		cost := e.CountUnit(unit)
		if cost > budget {
			break
		}
		kept = append(kept, unit)
		budget -= cost
	}

	return strings.Join(kept, " ")
}
