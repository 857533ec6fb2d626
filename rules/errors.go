package rules

import (
	"errors"
	"fmt"
)

// Error kinds returned by the Reader. Match them with errors.Is.
var (
	// ErrMalformedDocument means the input could not be tokenized into rule documents
	ErrMalformedDocument = errors.New("malformed rule document")

	// ErrInvalidRuleDefinition means a well-formed document is missing a required field
	ErrInvalidRuleDefinition = errors.New("invalid rule definition")
)

// Storage errors
var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrRuleExists   = errors.New("rule already exists")
)

// MalformedDocumentError wraps a tokenizer failure.
// Index is the zero-based document position, or -1 for a single-document read.
type MalformedDocumentError struct {
	Index int
	Err   error
}

func (e *MalformedDocumentError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s (document %d): %v", ErrMalformedDocument, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrMalformedDocument, e.Err)
}

// Unwrap returns the tokenizer error
func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedDocument) hold
func (e *MalformedDocumentError) Is(target error) bool {
	return target == ErrMalformedDocument
}

// InvalidRuleDefinitionError reports a structurally valid document that
// violates the rule definition contract.
type InvalidRuleDefinitionError struct {
	Index  int
	Field  string
	Reason string
}

func (e *InvalidRuleDefinitionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s (document %d): %s: %s", ErrInvalidRuleDefinition, e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidRuleDefinition, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidRuleDefinition) hold
func (e *InvalidRuleDefinitionError) Is(target error) bool {
	return target == ErrInvalidRuleDefinition
}

// atIndex stamps the document position onto reader errors
func atIndex(err error, index int) error {
	var malformed *MalformedDocumentError
	if errors.As(err, &malformed) {
		return &MalformedDocumentError{Index: index, Err: malformed.Err}
	}
	var invalid *InvalidRuleDefinitionError
	if errors.As(err, &invalid) {
		return &InvalidRuleDefinitionError{Index: index, Field: invalid.Field, Reason: invalid.Reason}
	}
	return err
}
