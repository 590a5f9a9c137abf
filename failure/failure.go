package failure

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies failures. The zero Kind is None, carried by successful
// results.
type Kind int

const (
	None Kind = iota
	Unknown
	InvalidArgument
	InvalidTransactionState
	DuplicatePrimaryKeyValue
	SchemaMismatch
	SchemaVersionDowngrade
	MigrationFailed
	ReferenceMismatch
	ReferenceAlreadyConsumed
	UnsupportedOperation
	InstanceClosed
	IOFailure
	Busy
)

var kindNames = map[Kind]string{
	None:                     "None",
	Unknown:                  "Unknown",
	InvalidArgument:          "InvalidArgument",
	InvalidTransactionState:  "InvalidTransactionState",
	DuplicatePrimaryKeyValue: "DuplicatePrimaryKeyValue",
	SchemaMismatch:           "SchemaMismatch",
	SchemaVersionDowngrade:   "SchemaVersionDowngrade",
	MigrationFailed:          "MigrationFailed",
	ReferenceMismatch:        "ReferenceMismatch",
	ReferenceAlreadyConsumed: "ReferenceAlreadyConsumed",
	UnsupportedOperation:     "UnsupportedOperation",
	InstanceClosed:           "InstanceClosed",
	IOFailure:                "IOFailure",
	Busy:                     "Busy",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind '%s'", text)
}

// Sentinels to be used with errors.Is, they match any error of the same kind.
var (
	ErrInvalidArgument          = &Error{Kind: InvalidArgument}
	ErrInvalidTransactionState  = &Error{Kind: InvalidTransactionState}
	ErrDuplicatePrimaryKeyValue = &Error{Kind: DuplicatePrimaryKeyValue}
	ErrSchemaMismatch           = &Error{Kind: SchemaMismatch}
	ErrSchemaVersionDowngrade   = &Error{Kind: SchemaVersionDowngrade}
	ErrMigrationFailed          = &Error{Kind: MigrationFailed}
	ErrReferenceMismatch        = &Error{Kind: ReferenceMismatch}
	ErrReferenceAlreadyConsumed = &Error{Kind: ReferenceAlreadyConsumed}
	ErrUnsupportedOperation     = &Error{Kind: UnsupportedOperation}
	ErrInstanceClosed           = &Error{Kind: InstanceClosed}
	ErrIOFailure                = &Error{Kind: IOFailure}
	ErrBusy                     = &Error{Kind: Busy}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, format string, a ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, a...),
	}
}

func Wrap(kind Kind, err error, format string, a ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, a...),
		Err:     err,
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// DuplicateKeyError is returned when a unique creation finds an existing
// object with the same primary key and no update was requested.
type DuplicateKeyError struct {
	Table  string
	Column string
	Key    string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("attempting to create an object of type '%s' with an existing primary key value '%s' in column '%s'", e.Table, e.Key, e.Column)
}

func (e *DuplicateKeyError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == DuplicatePrimaryKeyValue && t.Message == ""
}

// KindOf classifies any error. A nil error is None. Errors not produced by
// this module are Unknown, except file system errors which are IOFailure.
func KindOf(err error) Kind {
	if err == nil {
		return None
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	var dup *DuplicateKeyError
	if errors.As(err, &dup) {
		return DuplicatePrimaryKeyValue
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return IOFailure
	}

	return Unknown
}
