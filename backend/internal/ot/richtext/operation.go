package richtext

// OpKind tags the variant of an Operation. The values double as the wire
// "type" tag.
type OpKind string

const (
	OpRetain   OpKind = "retain"
	OpInsert   OpKind = "insert"
	OpRemove   OpKind = "remove"
	OpAnnotate OpKind = "annotate"
)

// Bias distinguishes the two zero-width annotate operations.
type Bias string

const (
	BiasStart Bias = "start"
	BiasStop  Bias = "stop"
)

// Operation is one edit primitive. Construction performs no validation;
// a value like Retain(-1) is representable and rejected by Apply.
type Operation struct {
	Kind       OpKind
	Length     int        // retain
	Data       []Element  // insert / remove
	Bias       Bias       // annotate
	Annotation Annotation // annotate
}

// Retain skips n document elements unchanged.
func Retain(n int) Operation {
	return Operation{Kind: OpRetain, Length: n}
}

// Insert inserts elements at the current position without consuming input.
func Insert(data ...Element) Operation {
	return Operation{Kind: OpInsert, Data: data}
}

// Remove deletes elements at the current position. Each element must
// structurally equal the document element it consumes.
func Remove(data ...Element) Operation {
	return Operation{Kind: OpRemove, Data: data}
}

// Annotate toggles an annotation's active state at the current position.
// It consumes no input.
func Annotate(bias Bias, ann Annotation) Operation {
	return Operation{Kind: OpAnnotate, Bias: bias, Annotation: ann}
}

// Transaction is an ordered operation list plus the producer's declared
// net length delta. LengthDifference is advisory; Apply uses it only as
// an allocation hint and never trusts it for correctness.
type Transaction struct {
	LengthDifference int         `json:"lengthDifference"`
	Operations       []Operation `json:"operations"`
}
