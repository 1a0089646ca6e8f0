package dedup

import "errors"

var (
	// ErrInvalidRule reports a rule set that cannot be compiled.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrFieldType reports a field whose declared or observed kind does not
	// fit the way it is compared.
	ErrFieldType = errors.New("field type mismatch")
	// ErrDuplicateID reports two input records sharing an id.
	ErrDuplicateID = errors.New("duplicate record id")
	// ErrUnknownID reports a matched pair naming an id absent from the input.
	ErrUnknownID = errors.New("unknown record id")
)
