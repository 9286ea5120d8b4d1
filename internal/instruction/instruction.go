// Package instruction derives the reader-facing view of a context document by
// applying the rules declared in its instruction block.
package instruction

import (
	"github.com/go-ports/personal-context/internal/document"
)

// Apply returns a filtered deep copy of doc. doc is never modified.
// It fails with document.ErrMissingInstructionBlock when doc has no usable
// instruction section; no default rules are substituted.
func Apply(doc document.Document) (document.Document, error) {
	block, err := document.InstructionBlock(doc)
	if err != nil {
		return nil, err
	}

	out := doc.Clone()
	if rule := ParsePrivacy(block[document.PrivacyKey]); rule != nil {
		rule.Apply(out)
	}
	return out, nil
}
