// Package parse turns raw model output into the structured digest fields.
// Model output is unreliable: it may be a clean JSON object, JSON wrapped in
// prose or markdown fences, sectioned text, or free text. Parse works through
// those shapes in order and always returns a usable Result.
package parse

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Placeholder values filled in when a layer produced nothing usable.
const (
	DefaultOverview    = "No overview available"
	DefaultKeyDecision = "No key decisions identified"
	DefaultActionItem  = "No action items identified"
)

// Source identifies which parsing layer produced a Result.
type Source int

const (
	// SourceJSON means the text decoded as a JSON object, either directly
	// or after extracting an embedded object.
	SourceJSON Source = iota
	// SourceSections means the sectioned-text scanner recognized headings.
	SourceSections
	// SourceFallback means no structure was recognized and defaults were
	// applied around the raw text.
	SourceFallback
)

// Result holds the three digest fields produced by parsing.
//
// A nil slice means the layer that produced the result had no opinion about
// that field; an empty non-nil slice means the model explicitly returned an
// empty list. The distinction matters for FillDefaults and for JSON
// round-tripping.
type Result struct {
	Overview     string   `json:"overview"`
	KeyDecisions []string `json:"key_decisions"`
	ActionItems  []string `json:"action_items"`
	Source       Source   `json:"-"`
}

// embeddedJSON greedily captures the outermost brace-delimited region, which
// tolerates markdown fences and prose around the object.
var embeddedJSON = regexp.MustCompile(`(?s)\{.*\}`)

// Digest parses raw model output into a Result, trying each layer in order:
//
//  1. strict JSON object decode
//  2. JSON object extracted from surrounding text
//  3. sectioned-text scan (OVERVIEW / KEY DECISIONS / ACTION ITEMS)
//  4. fallback: the trimmed text becomes the overview
//
// The returned Result never has an empty Overview or nil slices; missing
// fields are filled with placeholder values.
func Digest(text string) Result {
	if r, ok := FromJSON(text); ok {
		return fillDefaults(r)
	}
	if m := embeddedJSON.FindString(text); m != "" {
		if r, ok := FromJSON(m); ok {
			return fillDefaults(r)
		}
	}
	if r, ok := fromSections(text); ok {
		return fillDefaults(r)
	}
	r := Result{Overview: strings.TrimSpace(text), Source: SourceFallback}
	return fillDefaults(r)
}

// FromJSON attempts a strict decode of text as a digest JSON object. It
// reports false when text is not a JSON object or when none of the three
// fields carry a usable value.
func FromJSON(text string) (Result, bool) {
	var raw struct {
		Overview     *string  `json:"overview"`
		KeyDecisions []string `json:"key_decisions"`
		ActionItems  []string `json:"action_items"`
	}
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&raw); err != nil {
		return Result{}, false
	}

	r := Result{
		KeyDecisions: cleanItems(raw.KeyDecisions),
		ActionItems:  cleanItems(raw.ActionItems),
		Source:       SourceJSON,
	}
	if raw.Overview != nil {
		r.Overview = strings.TrimSpace(*raw.Overview)
	}

	// An object that decoded but populated nothing is not a digest.
	if r.Overview == "" && raw.KeyDecisions == nil && raw.ActionItems == nil {
		return Result{}, false
	}
	return r, true
}

// cleanItems trims entries and drops empties while preserving the
// nil-vs-empty distinction of the input.
func cleanItems(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// fromSections scans line-oriented model output for the three section
// headings and collects bullet items under each. It reports false when no
// heading was ever recognized.
func fromSections(text string) (Result, bool) {
	var (
		overview  string
		decisions []string
		actions   []string
		section   string
		matched   bool
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		low := strings.ToLower(line)
		switch {
		case strings.Contains(low, "overview") || strings.Contains(low, "summary"):
			section = "overview"
			matched = true
			if i := strings.Index(line, ":"); i >= 0 {
				overview = strings.TrimSpace(line[i+1:])
			}
		case strings.Contains(low, "decision"):
			section = "decisions"
			matched = true
		case strings.Contains(low, "action"):
			section = "actions"
			matched = true
		case isBullet(line):
			item := strings.TrimSpace(strings.TrimLeft(line, "-•*"))
			if item == "" {
				continue
			}
			switch section {
			case "decisions":
				decisions = append(decisions, item)
			case "actions":
				actions = append(actions, item)
			case "overview":
				overview = joinOverview(overview, item)
			}
		case section == "overview":
			overview = joinOverview(overview, line)
		}
	}

	if !matched {
		return Result{}, false
	}
	return Result{
		Overview:     overview,
		KeyDecisions: decisions,
		ActionItems:  actions,
		Source:       SourceSections,
	}, true
}

func joinOverview(have, more string) string {
	if have == "" {
		return more
	}
	return have + " " + more
}

func isBullet(line string) bool {
	return strings.HasPrefix(line, "-") ||
		strings.HasPrefix(line, "•") ||
		strings.HasPrefix(line, "*")
}

// fillDefaults replaces absent fields with placeholders. A nil slice means
// the producing layer had no opinion and gets a placeholder entry; a non-nil
// empty slice is an explicit "none" from the model and is preserved so JSON
// responses round-trip exactly.
func fillDefaults(r Result) Result {
	if strings.TrimSpace(r.Overview) == "" {
		r.Overview = DefaultOverview
	}
	if r.KeyDecisions == nil {
		r.KeyDecisions = []string{DefaultKeyDecision}
	}
	if r.ActionItems == nil {
		r.ActionItems = []string{DefaultActionItem}
	}
	return r
}
