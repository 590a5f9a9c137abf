package failure

import (
	"errors"
	"fmt"
	"os"
	"testing"

	. "github.com/fulldump/biff"
)

func TestError_Is(t *testing.T) {

	err := New(SchemaMismatch, "property '%s' is missing", "age")

	AssertTrue(errors.Is(err, ErrSchemaMismatch))
	AssertFalse(errors.Is(err, ErrMigrationFailed))
	AssertEqual(err.Error(), "property 'age' is missing")
}

func TestError_Wrapped(t *testing.T) {

	cause := errors.New("disk full")
	err := fmt.Errorf("commit: %w", Wrap(IOFailure, cause, "persist"))

	AssertTrue(errors.Is(err, ErrIOFailure))
	AssertTrue(errors.Is(err, cause))
	AssertEqual(KindOf(err), IOFailure)
	AssertEqual(err.Error(), "commit: persist: disk full")
}

func TestDuplicateKeyError(t *testing.T) {

	err := error(&DuplicateKeyError{Table: "Person", Column: "id", Key: "5"})

	AssertTrue(errors.Is(err, ErrDuplicatePrimaryKeyValue))
	AssertEqual(KindOf(err), DuplicatePrimaryKeyValue)
	AssertEqual(err.Error(), "attempting to create an object of type 'Person' with an existing primary key value '5' in column 'id'")
}

func TestKindOf(t *testing.T) {

	_, err := os.Open("/this/path/does/not/exist")

	AssertEqual(KindOf(err), IOFailure)
	AssertEqual(KindOf(errors.New("boom")), Unknown)
	AssertEqual(KindOf(nil), None)
}

func TestKind_Text(t *testing.T) {

	b, _ := ReferenceAlreadyConsumed.MarshalText()
	AssertEqual(string(b), "ReferenceAlreadyConsumed")

	var k Kind
	AssertNil(k.UnmarshalText([]byte("InstanceClosed")))
	AssertEqual(k, InstanceClosed)
	AssertNotNil(k.UnmarshalText([]byte("Nope")))
}
