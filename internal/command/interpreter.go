package command

import (
	"strings"
	"unicode"
)

// Interpret maps a cumulative transcript to a command token for the given context.
// Only the trailing words are compared: the last two for Camera, the last one for
// SaveDialog. Start phrases are checked before stop phrases.
func Interpret(transcript string, ctx Context, keywords KeywordSet) (Token, bool) {
	words := Tokenize(transcript)
	if len(words) == 0 {
		return "", false
	}

	switch ctx {
	case SaveDialog:
		switch words[len(words)-1] {
		case "yes":
			return Yes, true
		case "no":
			return No, true
		}
		return "", false

	case Camera:
		window := ctx.Window()
		if len(words) < window {
			return "", false
		}
		suffix := strings.Join(words[len(words)-window:], " ")
		for _, phrase := range keywords.Start {
			if suffix == normalizePhrase(phrase) {
				return Start, true
			}
		}
		for _, phrase := range keywords.Stop {
			if suffix == normalizePhrase(phrase) {
				return Stop, true
			}
		}
	}

	return "", false
}

// Tokenize lower-cases the transcript, splits it on whitespace and trims
// punctuation hugging each word ("Action." -> "action").
func Tokenize(transcript string) []string {
	fields := strings.Fields(strings.ToLower(transcript))
	words := fields[:0]
	for _, f := range fields {
		w := strings.TrimFunc(f, unicode.IsPunct)
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

func normalizePhrase(phrase string) string {
	return strings.Join(Tokenize(phrase), " ")
}

// Detector applies Interpret to the successive cumulative transcripts of one
// listening session and reports each matched utterance once. Engines resend the
// whole transcript on every partial result, so the same suffix shows up again
// until the speaker says something new.
type Detector struct {
	ctx      Context
	keywords KeywordSet

	lastToken Token
	lastWords int
}

// NewDetector creates a detector bound to a context and keyword snapshot
func NewDetector(ctx Context, keywords KeywordSet) *Detector {
	return &Detector{ctx: ctx, keywords: keywords}
}

// Observe returns a token when the transcript ends in a command that has not been
// reported yet.
func (d *Detector) Observe(transcript string) (Token, bool) {
	token, ok := Interpret(transcript, d.ctx, d.keywords)
	if !ok {
		return "", false
	}

	words := len(Tokenize(transcript))
	if token == d.lastToken && words <= d.lastWords {
		return "", false
	}

	d.lastToken = token
	d.lastWords = words
	return token, true
}

// Context returns the grammar the detector was created for
func (d *Detector) Context() Context {
	return d.ctx
}
