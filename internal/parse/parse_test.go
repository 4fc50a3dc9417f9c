package parse

import (
	"reflect"
	"testing"
)

func TestDigest_StrictJSON(t *testing.T) {
	got := Digest(`{"overview":"Weekly sync.","key_decisions":["Ship Friday"],"action_items":["Bob writes notes"]}`)
	if got.Source != SourceJSON {
		t.Fatalf("expected SourceJSON, got %v", got.Source)
	}
	if got.Overview != "Weekly sync." {
		t.Fatalf("unexpected overview: %q", got.Overview)
	}
	if !reflect.DeepEqual(got.KeyDecisions, []string{"Ship Friday"}) {
		t.Fatalf("unexpected decisions: %#v", got.KeyDecisions)
	}
	if !reflect.DeepEqual(got.ActionItems, []string{"Bob writes notes"}) {
		t.Fatalf("unexpected actions: %#v", got.ActionItems)
	}
}

func TestDigest_JSONEmptyArraysRoundTripExactly(t *testing.T) {
	// An explicit empty list from the model is not the same as a missing
	// field: it must survive parsing untouched, not be replaced by a
	// placeholder entry.
	got := Digest(`{"overview":"Nothing to decide.","key_decisions":[],"action_items":[]}`)
	if got.Source != SourceJSON {
		t.Fatalf("expected SourceJSON, got %v", got.Source)
	}
	if got.KeyDecisions == nil || len(got.KeyDecisions) != 0 {
		t.Fatalf("expected non-nil empty decisions, got %#v", got.KeyDecisions)
	}
	if got.ActionItems == nil || len(got.ActionItems) != 0 {
		t.Fatalf("expected non-nil empty actions, got %#v", got.ActionItems)
	}
}

func TestDigest_JSONMissingFieldsGetPlaceholders(t *testing.T) {
	got := Digest(`{"overview":"Only an overview."}`)
	if got.Source != SourceJSON {
		t.Fatalf("expected SourceJSON, got %v", got.Source)
	}
	if !reflect.DeepEqual(got.KeyDecisions, []string{DefaultKeyDecision}) {
		t.Fatalf("expected placeholder decisions, got %#v", got.KeyDecisions)
	}
	if !reflect.DeepEqual(got.ActionItems, []string{DefaultActionItem}) {
		t.Fatalf("expected placeholder actions, got %#v", got.ActionItems)
	}
}

func TestDigest_EmbeddedJSONInMarkdownFence(t *testing.T) {
	text := "Here is the digest you asked for:\n```json\n" +
		`{"overview":"Planning call.","key_decisions":["Adopt the new schema"],"action_items":[]}` +
		"\n```\nLet me know if you need anything else."
	got := Digest(text)
	if got.Source != SourceJSON {
		t.Fatalf("expected SourceJSON from embedded object, got %v", got.Source)
	}
	if got.Overview != "Planning call." {
		t.Fatalf("unexpected overview: %q", got.Overview)
	}
	if got.ActionItems == nil || len(got.ActionItems) != 0 {
		t.Fatalf("expected non-nil empty actions, got %#v", got.ActionItems)
	}
}

func TestDigest_Sections(t *testing.T) {
	text := `OVERVIEW: The team met to plan the release.
They also reviewed open incidents.

KEY DECISIONS:
- Ship on Friday
- Freeze the schema
* Keep the old endpoint alive

ACTION ITEMS:
• Bob writes the release notes
- Alice files the freeze ticket`

	got := Digest(text)
	if got.Source != SourceSections {
		t.Fatalf("expected SourceSections, got %v", got.Source)
	}
	// Continuation lines under the overview heading are concatenated.
	want := "The team met to plan the release. They also reviewed open incidents."
	if got.Overview != want {
		t.Fatalf("unexpected overview: %q", got.Overview)
	}
	if !reflect.DeepEqual(got.KeyDecisions, []string{"Ship on Friday", "Freeze the schema", "Keep the old endpoint alive"}) {
		t.Fatalf("unexpected decisions: %#v", got.KeyDecisions)
	}
	if !reflect.DeepEqual(got.ActionItems, []string{"Bob writes the release notes", "Alice files the freeze ticket"}) {
		t.Fatalf("unexpected actions: %#v", got.ActionItems)
	}
}

func TestDigest_SectionsCaseInsensitiveAndSparse(t *testing.T) {
	text := `Summary of the call
We agreed on scope.

Decisions made:
- Cut the beta feature`

	got := Digest(text)
	if got.Source != SourceSections {
		t.Fatalf("expected SourceSections, got %v", got.Source)
	}
	if got.Overview != "We agreed on scope." {
		t.Fatalf("unexpected overview: %q", got.Overview)
	}
	if !reflect.DeepEqual(got.KeyDecisions, []string{"Cut the beta feature"}) {
		t.Fatalf("unexpected decisions: %#v", got.KeyDecisions)
	}
	// No action heading ever appeared, so the field gets its placeholder.
	if !reflect.DeepEqual(got.ActionItems, []string{DefaultActionItem}) {
		t.Fatalf("expected placeholder actions, got %#v", got.ActionItems)
	}
}

func TestDigest_FreeTextFallback(t *testing.T) {
	got := Digest("  just some prose the model produced  ")
	if got.Source != SourceFallback {
		t.Fatalf("expected SourceFallback, got %v", got.Source)
	}
	if got.Overview != "just some prose the model produced" {
		t.Fatalf("unexpected overview: %q", got.Overview)
	}
	if !reflect.DeepEqual(got.KeyDecisions, []string{DefaultKeyDecision}) {
		t.Fatalf("expected placeholder decisions, got %#v", got.KeyDecisions)
	}
	if !reflect.DeepEqual(got.ActionItems, []string{DefaultActionItem}) {
		t.Fatalf("expected placeholder actions, got %#v", got.ActionItems)
	}
}

func TestDigest_EmptyInput(t *testing.T) {
	got := Digest("   \n\t  ")
	if got.Overview != DefaultOverview {
		t.Fatalf("expected default overview, got %q", got.Overview)
	}
	if !reflect.DeepEqual(got.KeyDecisions, []string{DefaultKeyDecision}) ||
		!reflect.DeepEqual(got.ActionItems, []string{DefaultActionItem}) {
		t.Fatalf("expected all placeholders, got %+v", got)
	}
}

func TestFromJSON_RejectsNonObjectsAndEmptyObjects(t *testing.T) {
	cases := []string{
		``,
		`not json at all`,
		`[1,2,3]`,
		`"a string"`,
		`{}`,
		`{"unrelated":"field"}`,
		`{"overview":"   "}`, // whitespace-only overview populates nothing
	}
	for _, tc := range cases {
		if r, ok := FromJSON(tc); ok {
			t.Fatalf("FromJSON(%q) unexpectedly succeeded: %+v", tc, r)
		}
	}
}

func TestFromJSON_TrimsAndDropsEmptyItems(t *testing.T) {
	r, ok := FromJSON(`{"overview":" x ","key_decisions":["  a  ","","  "],"action_items":null}`)
	if !ok {
		t.Fatalf("FromJSON failed")
	}
	if r.Overview != "x" {
		t.Fatalf("overview not trimmed: %q", r.Overview)
	}
	if !reflect.DeepEqual(r.KeyDecisions, []string{"a"}) {
		t.Fatalf("unexpected decisions: %#v", r.KeyDecisions)
	}
	if r.ActionItems != nil {
		t.Fatalf("null field must stay nil, got %#v", r.ActionItems)
	}
}
