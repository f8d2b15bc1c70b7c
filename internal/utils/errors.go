package utils

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindDuplicateKey           ErrorKind = "DuplicateKey"
	KindDanglingReference      ErrorKind = "DanglingReference"
	KindReferentialViolation   ErrorKind = "ReferentialViolation"
	KindDomainRuleViolation    ErrorKind = "DomainRuleViolation"
	KindConsistencyViolation   ErrorKind = "ConsistencyViolation"
	KindConcurrentModification ErrorKind = "ConcurrentModification"
	KindNotFound               ErrorKind = "NotFound"
	KindUnknownTable           ErrorKind = "UnknownTable"
	KindTxClosed               ErrorKind = "TxClosed"
)

var (
	ErrDuplicateKey           = errors.New("duplicate key")
	ErrDanglingReference      = errors.New("dangling reference")
	ErrReferentialViolation   = errors.New("referential violation")
	ErrDomainRule             = errors.New("domain rule violation")
	ErrConsistency            = errors.New("consistency violation")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrRecordNotFound         = errors.New("record not found")
	ErrUnknownTable           = errors.New("unknown table")
	ErrTxClosed               = errors.New("transaction closed")

	// ErrValidationFailed matches every kind a caller fixes by correcting
	// its input rather than retrying.
	ErrValidationFailed = errors.New(ErrValidationFailedMessage)
)

var kindSentinels = map[ErrorKind]error{
	KindDuplicateKey:           ErrDuplicateKey,
	KindDanglingReference:      ErrDanglingReference,
	KindReferentialViolation:   ErrReferentialViolation,
	KindDomainRuleViolation:    ErrDomainRule,
	KindConsistencyViolation:   ErrConsistency,
	KindConcurrentModification: ErrConcurrentModification,
	KindNotFound:               ErrRecordNotFound,
	KindUnknownTable:           ErrUnknownTable,
	KindTxClosed:               ErrTxClosed,
}

// IsValidation reports whether the kind is one of the validation classes.
func (k ErrorKind) IsValidation() bool {
	switch k {
	case KindDuplicateKey, KindDanglingReference, KindReferentialViolation,
		KindDomainRuleViolation, KindConsistencyViolation:
		return true
	}
	return false
}

// Violation is a single broken rule. Consistency checks can report several
// at once.
type Violation struct {
	Rule    string `json:"rule"`
	Table   string `json:"table"`
	Key     string `json:"key,omitempty"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	var b strings.Builder
	b.WriteString(v.Rule)
	if v.Key != "" {
		fmt.Fprintf(&b, " [%s %s]", v.Table, v.Key)
	}
	if v.Field != "" {
		fmt.Fprintf(&b, " %s=%s", v.Field, v.Value)
	}
	if v.Message != "" {
		b.WriteString(": ")
		b.WriteString(v.Message)
	}
	return b.String()
}

// StoreError is returned by every store operation that fails for a reason
// the caller can act on.
type StoreError struct {
	Kind       ErrorKind   `json:"kind"`
	Table      string      `json:"table,omitempty"`
	Key        string      `json:"key,omitempty"`
	Field      string      `json:"field,omitempty"`
	Rule       string      `json:"rule,omitempty"`
	Value      string      `json:"value,omitempty"`
	Message    string      `json:"message"`
	Violations []Violation `json:"violations,omitempty"`
}

func (e *StoreError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Rule != "" {
		fmt.Fprintf(&b, " (%s)", e.Rule)
	}
	if e.Table != "" {
		fmt.Fprintf(&b, ": %s", e.Table)
		if e.Key != "" {
			fmt.Fprintf(&b, " %s", e.Key)
		}
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " %s=%q", e.Field, e.Value)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if len(e.Violations) > 1 {
		fmt.Fprintf(&b, " (+%d more)", len(e.Violations)-1)
	}
	return b.String()
}

func (e *StoreError) Is(target error) bool {
	if target == ErrValidationFailed {
		return e.Kind.IsValidation()
	}
	return kindSentinels[e.Kind] == target
}

func NewStoreError(kind ErrorKind, table, key, message string) *StoreError {
	return &StoreError{Kind: kind, Table: table, Key: key, Message: message}
}

// NewViolationError builds an error whose top-level fields mirror the first
// violation.
func NewViolationError(kind ErrorKind, violations []Violation) *StoreError {
	if len(violations) == 0 {
		return &StoreError{Kind: kind, Message: "validation failed"}
	}
	first := violations[0]
	return &StoreError{
		Kind:       kind,
		Table:      first.Table,
		Key:        first.Key,
		Field:      first.Field,
		Rule:       first.Rule,
		Value:      first.Value,
		Message:    first.Message,
		Violations: violations,
	}
}

// AsStoreError unwraps err to a *StoreError if it is one.
func AsStoreError(err error) (*StoreError, bool) {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr, true
	}
	return nil, false
}

func KindOf(err error) ErrorKind {
	if storeErr, ok := AsStoreError(err); ok {
		return storeErr.Kind
	}
	return ""
}
