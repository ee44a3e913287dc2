// Package aggregate filters, deduplicates and ranks entity observations per
// category.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/daniel-butler/entity-meta/pkg/ner"
)

// Config holds the quality and ranking limits.
type Config struct {
	// MinScore is the confidence an observation must strictly exceed to be
	// accepted as the first occurrence of its text.
	MinScore float64

	// MaxEntities caps the number of texts selected per category.
	MaxEntities int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		MinScore:    0.97,
		MaxEntities: 10,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min score must be within [0,1], got %g", c.MinScore)
	}
	if c.MaxEntities <= 0 {
		return fmt.Errorf("max entities must be positive, got %d", c.MaxEntities)
	}
	return nil
}

var upper = cases.Upper(language.Und)

// Normalize returns the form used to compare entity texts.
func Normalize(text string) string {
	return upper.String(text)
}

// Accepts reports whether e passes the quality filter: a score strictly
// above minScore, only printable characters, and no double quote.
func Accepts(e ner.Entity, minScore float64) bool {
	if e.Score <= minScore {
		return false
	}
	if strings.ContainsRune(e.Text, '"') {
		return false
	}
	for _, r := range e.Text {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// accumulator tracks one category.
type accumulator struct {
	kept   []string // original casing, first-seen order
	order  []string // normalized, first-seen order
	seen   mapset.Set[string]
	counts map[string]int
}

func newAccumulator() *accumulator {
	return &accumulator{
		kept:   []string{},
		order:  []string{},
		seen:   mapset.NewThreadUnsafeSet[string](),
		counts: make(map[string]int),
	}
}

// Aggregator collects observations for every category.
type Aggregator struct {
	config Config
	accs   map[ner.Category]*accumulator
}

// New creates an Aggregator with an empty accumulator for every category.
func New(cfg Config) *Aggregator {
	a := &Aggregator{
		config: cfg,
		accs:   make(map[ner.Category]*accumulator),
	}
	for _, c := range ner.Categories() {
		a.accs[c] = newAccumulator()
	}
	return a
}

// Add records one observation and reports whether it was newly accepted.
//
// The first occurrence of a text must pass the quality filter. Once a text
// is tracked, every later occurrence counts toward its frequency whether or
// not it passes the filter itself. Observations with an unknown category are
// ignored.
func (a *Aggregator) Add(e ner.Entity) bool {
	acc, ok := a.accs[e.Category]
	if !ok {
		return false
	}

	key := Normalize(e.Text)
	if acc.seen.Contains(key) {
		acc.counts[key]++
		return false
	}
	if !Accepts(e, a.config.MinScore) {
		return false
	}

	acc.kept = append(acc.kept, e.Text)
	acc.order = append(acc.order, key)
	acc.seen.Add(key)
	acc.counts[key] = 1
	return true
}

// AddAll records observations in order and returns how many were newly accepted.
func (a *Aggregator) AddAll(entities []ner.Entity) int {
	accepted := 0
	for _, e := range entities {
		if a.Add(e) {
			accepted++
		}
	}
	return accepted
}

// Ranked is a normalized text with its occurrence count.
type Ranked struct {
	Text  string
	Count int
}

// Result is the finalized selection.
type Result struct {
	selected map[ner.Category][]string
	ranked   map[ner.Category][]Ranked
}

// Result ranks every category and projects the selection. Ties in count keep
// first-seen order.
func (a *Aggregator) Result() *Result {
	r := &Result{
		selected: make(map[ner.Category][]string, len(a.accs)),
		ranked:   make(map[ner.Category][]Ranked, len(a.accs)),
	}

	for c, acc := range a.accs {
		ranked := make([]Ranked, len(acc.order))
		for i, key := range acc.order {
			ranked[i] = Ranked{Text: key, Count: acc.counts[key]}
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Count > ranked[j].Count
		})
		if len(ranked) > a.config.MaxEntities {
			ranked = ranked[:a.config.MaxEntities]
		}

		top := mapset.NewThreadUnsafeSet[string]()
		for _, rk := range ranked {
			top.Add(rk.Text)
		}

		selected := []string{}
		for i, text := range acc.kept {
			if top.Contains(acc.order[i]) {
				selected = append(selected, text)
			}
		}

		r.selected[c] = selected
		r.ranked[c] = ranked
	}
	return r
}

// Selected returns the chosen texts for c in first-seen order. The slice is
// never nil for a known category.
func (r *Result) Selected(c ner.Category) []string {
	return r.selected[c]
}

// Ranked returns the top texts for c, most frequent first.
func (r *Result) Ranked(c ner.Category) []Ranked {
	return r.ranked[c]
}

// Total returns the number of selected texts across all categories.
func (r *Result) Total() int {
	n := 0
	for _, s := range r.selected {
		n += len(s)
	}
	return n
}
