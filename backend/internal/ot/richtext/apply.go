package richtext

import (
	"errors"
	"fmt"
)

var (
	// ErrOverRetain reports a retain that requests elements past the end
	// of the document (or a negative count the document cannot supply).
	ErrOverRetain = errors.New("retain past end of document")

	// ErrDeleteMismatch reports a remove whose element does not
	// structurally equal the document element at the read cursor, or a
	// remove against an exhausted document.
	ErrDeleteMismatch = errors.New("remove does not match document")

	// ErrIncompleteApplication reports a transaction whose operations ran
	// out before consuming the whole document.
	ErrIncompleteApplication = errors.New("transaction does not cover document")
)

// Apply walks doc and tx.Operations in lock-step and produces the
// resulting document. It is a pure function: the inputs are never
// mutated and the same inputs always yield the same output or the same
// error. Work is a single pass, O(len(doc) + inserted + removed).
//
// Annotate operations are zero-width: they consume no input. The applier
// threads an active-annotation list through the pass; start pushes,
// stop removes the most recent matching entry, and every inserted
// character picks up the active annotations it does not already carry.
// Retained and removed elements are never rewritten.
func Apply(doc Document, tx Transaction) (Document, error) {
	out := make(Document, 0, allocHint(len(doc), tx))
	var active []Annotation
	read := 0

	for _, op := range tx.Operations {
		switch op.Kind {
		case OpRetain:
			n := op.Length
			// len(doc)-read cannot underflow; read+n can, for a wire-supplied
			// n near MaxInt.
			if n < 0 || n > len(doc)-read {
				return nil, fmt.Errorf("retain %d with %d elements remaining: %w",
					n, len(doc)-read, ErrOverRetain)
			}
			out = append(out, doc[read:read+n]...)
			read += n

		case OpInsert:
			for _, el := range op.Data {
				out = append(out, annotated(el, active))
			}

		case OpRemove:
			for _, el := range op.Data {
				if read >= len(doc) {
					return nil, fmt.Errorf("remove at end of document: %w", ErrDeleteMismatch)
				}
				if !doc[read].Equal(el) {
					return nil, fmt.Errorf("remove at position %d: %w", read, ErrDeleteMismatch)
				}
				read++
			}

		case OpAnnotate:
			switch op.Bias {
			case BiasStart:
				active = append(active, op.Annotation)
			case BiasStop:
				active = stopAnnotation(active, op.Annotation)
			default:
				return nil, fmt.Errorf("unknown annotate bias %q", op.Bias)
			}

		default:
			// Closed union: an unmatched kind is a bug in the producer,
			// never something to skip silently.
			return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
		}
	}

	if read != len(doc) {
		return nil, fmt.Errorf("%d of %d elements consumed: %w",
			read, len(doc), ErrIncompleteApplication)
	}
	return out, nil
}

// annotated applies the active annotations to an inserted character,
// preserving the element's own annotation order ahead of the active set.
func annotated(el Element, active []Annotation) Element {
	if el.Kind != KindChar || len(active) == 0 {
		return el
	}
	anns := el.Annotations
	copied := false
	for _, a := range active {
		if hasAnnotation(anns, a) {
			continue
		}
		if !copied {
			anns = append(make([]Annotation, 0, len(anns)+len(active)), anns...)
			copied = true
		}
		anns = append(anns, a)
	}
	el.Annotations = anns
	return el
}

// stopAnnotation drops the most recently started matching annotation.
// Stopping an annotation that is not active is a no-op.
func stopAnnotation(active []Annotation, ann Annotation) []Annotation {
	for i := len(active) - 1; i >= 0; i-- {
		if active[i] == ann {
			return append(active[:i:i], active[i+1:]...)
		}
	}
	return active
}

func hasAnnotation(anns []Annotation, ann Annotation) bool {
	for _, a := range anns {
		if a == ann {
			return true
		}
	}
	return false
}

// allocHint sizes the output from the producer's declared delta. The
// hint is advisory and comes off the wire, so it is clamped to the real
// ceiling (input length plus insert payload) before reaching make; a
// wrong value costs a regrow, never correctness and never a panic.
func allocHint(docLen int, tx Transaction) int {
	ceiling := docLen
	for _, op := range tx.Operations {
		if op.Kind == OpInsert {
			ceiling += len(op.Data)
		}
	}
	n := docLen + tx.LengthDifference
	if n < 0 {
		return 0
	}
	if n > ceiling {
		return ceiling
	}
	return n
}
