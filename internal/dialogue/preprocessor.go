package dialogue

import "strings"

// Preprocessed carries an inbound message in both its original and
// normalized forms. Downstream classification works on Normalized;
// Raw is kept for entity extraction that is case-sensitive (e.g. the
// verbatim question text on an FAQ intent).
type Preprocessed struct {
	Raw        string
	Normalized string
}

// Preprocess normalizes raw inbound text: trim surrounding whitespace and
// case-fold. It never alters semantic content (no stemming, no rewriting).
func Preprocess(raw string) Preprocessed {
	return Preprocessed{
		Raw:        raw,
		Normalized: strings.ToLower(strings.TrimSpace(raw)),
	}
}
