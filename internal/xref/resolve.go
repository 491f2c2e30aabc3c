// Package xref links ledger entries to the highlights and decisions they cite.
//
// Nothing here is cached: the highlight registry changes independently of the
// entries, so callers resolve again on every read.
package xref

import (
	"strings"

	"github.com/starford/verba/internal/highlight"
	"github.com/starford/verba/internal/models"
)

// DecisionSeparator splits a linked decision reference into identifier and label.
const DecisionSeparator = " - "

// ResolveEntryHighlights returns the live highlights referenced by entry, in
// the order of entry.HighlightIDs. Ids without a live highlight are skipped.
func ResolveEntryHighlights(entry models.LedgerEntry, reg highlight.Lookup) []models.Highlight {
	out := make([]models.Highlight, 0, len(entry.HighlightIDs))
	for _, id := range entry.HighlightIDs {
		if h, ok := reg.Lookup(id); ok {
			out = append(out, h)
		}
	}
	return out
}

// StaleEntryHighlightIDs returns the ids of entry that no longer resolve.
func StaleEntryHighlightIDs(entry models.LedgerEntry, reg highlight.Lookup) []string {
	live := reg.CurrentIDs()
	var out []string
	for _, id := range entry.HighlightIDs {
		if _, ok := live[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// DecisionIdentifier extracts the candidate identifier from a reference of the
// form "<identifier> - <label>". A reference without the separator is taken
// whole. Nothing is trimmed: the identifier must match exactly.
func DecisionIdentifier(ref string) string {
	id, _, _ := strings.Cut(ref, DecisionSeparator)
	return id
}

// ResolveLinkedDecision finds the decision whose identifier equals the
// identifier parsed from entry.LinkedDecisionRef. The match is exact and
// case-sensitive; an empty identifier never matches.
func ResolveLinkedDecision(entry models.LedgerEntry, decisions []models.Decision) (models.Decision, bool) {
	id := DecisionIdentifier(entry.LinkedDecisionRef)
	if id == "" {
		return models.Decision{}, false
	}
	for _, d := range decisions {
		if d.Identifier == id {
			return d, true
		}
	}
	return models.Decision{}, false
}

// DisplayDecisionRef returns the identifier of the linked decision, or the raw
// reference text when it does not resolve.
func DisplayDecisionRef(entry models.LedgerEntry, decisions []models.Decision) string {
	if d, ok := ResolveLinkedDecision(entry, decisions); ok {
		return d.Identifier
	}
	return entry.LinkedDecisionRef
}
