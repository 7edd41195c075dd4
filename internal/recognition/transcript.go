package recognition

import (
	"strings"
)

// Transcript folds segment-based engine output into one cumulative transcript.
// Finalized segments are committed; the current interim hypothesis replaces
// the previous one.
type Transcript struct {
	committed []string
	interim   string
}

// Commit appends a finalized segment and clears the interim hypothesis
func (t *Transcript) Commit(text string) string {
	if text = strings.TrimSpace(text); text != "" {
		t.committed = append(t.committed, text)
	}
	t.interim = ""
	return t.Text()
}

// SetInterim replaces the in-progress hypothesis
func (t *Transcript) SetInterim(text string) string {
	t.interim = strings.TrimSpace(text)
	return t.Text()
}

// Update applies one engine result
func (t *Transcript) Update(text string, final bool) string {
	if final {
		return t.Commit(text)
	}
	return t.SetInterim(text)
}

// Text returns the cumulative transcript
func (t *Transcript) Text() string {
	parts := t.committed
	if t.interim != "" {
		parts = append(parts[:len(parts):len(parts)], t.interim)
	}
	return strings.Join(parts, " ")
}
