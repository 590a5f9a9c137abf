package realm

import (
	"context"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/schema"
)

func personSchemaV2() schema.Schema {
	s := personSchema()
	s[1].Properties[1].Name = "fullName"
	return s
}

func seedPeople(filename string) {
	r := mustOpen(testConfig(filename))
	defer r.Close()

	r.BeginTransaction(context.Background())
	r.CreateObjectIntUnique("Person", 1, false, map[string]any{"name": "Fulanez"})
	r.CreateObjectIntUnique("Person", 2, false, map[string]any{"name": "Menganez"})
	r.CommitTransaction()
}

func renameMigration(oldRealm, newRealm *Realm, target schema.Schema, oldVersion uint64) bool {
	oldPeople, _ := oldRealm.Table("Person")
	newPeople, _ := newRealm.Table("Person")
	all, _ := oldPeople.All()
	objects, _ := all.Objects()
	for _, o := range objects {
		name, _ := o.Get("name")
		person, _ := newPeople.Find(o.Key())
		if err := person.Set(map[string]any{"fullName": name}); err != nil {
			return false
		}
	}
	return true
}

func TestMigration_Success(t *testing.T) {
	Environment(func(filename string) {

		seedPeople(filename)

		calls := 0
		config := testConfig(filename)
		config.Schema = personSchemaV2()
		config.SchemaVersion = 2
		config.MigrationFunc = func(oldRealm, newRealm *Realm, target schema.Schema, oldVersion uint64) bool {
			calls++
			AssertEqual(oldVersion, uint64(1))
			AssertEqual(target.Names(), []string{"Dog", "Person"})
			AssertEqual(kindOf(newRealm.CommitTransaction()), failure.InvalidTransactionState)
			return renameMigration(oldRealm, newRealm, target, oldVersion)
		}

		r, err := Open(context.Background(), config)
		AssertNil(err)
		defer r.Close()
		AssertEqual(calls, 1)

		version, _ := r.SchemaVersion()
		AssertEqual(version, uint64(2))

		people, _ := r.Table("Person")
		person, _ := people.FindByPrimaryKey(2)
		name, _ := person.Get("fullName")
		AssertEqual(name, "Menganez")
	})
}

func TestMigration_Declined(t *testing.T) {
	Environment(func(filename string) {

		seedPeople(filename)

		config := testConfig(filename)
		config.Schema = personSchemaV2()
		config.SchemaVersion = 2
		config.MigrationFunc = func(oldRealm, newRealm *Realm, target schema.Schema, oldVersion uint64) bool {
			renameMigration(oldRealm, newRealm, target, oldVersion)
			return false
		}

		_, err := Open(context.Background(), config)
		AssertEqual(kindOf(err), failure.MigrationFailed)

		r, err := Open(context.Background(), Config{Path: filename, SchemaVersion: DynamicSchema})
		AssertNil(err)
		defer r.Close()

		version, _ := r.SchemaVersion()
		AssertEqual(version, uint64(1))
		people, _ := r.Table("Person")
		person, _ := people.FindByPrimaryKey(1)
		name, _ := person.Get("name")
		AssertEqual(name, "Fulanez")
	})
}

func TestMigration_Panics(t *testing.T) {
	Environment(func(filename string) {

		seedPeople(filename)

		config := testConfig(filename)
		config.SchemaVersion = 2
		config.MigrationFunc = func(oldRealm, newRealm *Realm, target schema.Schema, oldVersion uint64) bool {
			panic("boom")
		}

		_, err := Open(context.Background(), config)
		AssertEqual(kindOf(err), failure.MigrationFailed)
		AssertEqual(err.Error(), "migration from version 1 to 2 failed: panic: boom")
	})
}

func TestMigration_DuplicatePrimaryKeys(t *testing.T) {
	Environment(func(filename string) {

		seedPeople(filename)

		config := testConfig(filename)
		config.SchemaVersion = 2
		config.MigrationFunc = func(oldRealm, newRealm *Realm, target schema.Schema, oldVersion uint64) bool {
			people, _ := newRealm.Table("Person")
			person, _ := people.FindByPrimaryKey(2)
			return person.Set(map[string]any{"id": 1}) == nil
		}

		_, err := Open(context.Background(), config)
		AssertEqual(kindOf(err), failure.MigrationFailed)
	})
}

func TestMigration_WithoutFunction(t *testing.T) {
	Environment(func(filename string) {

		seedPeople(filename)

		config := testConfig(filename)
		config.Schema = personSchemaV2()
		config.SchemaVersion = 2

		r, err := Open(context.Background(), config)
		AssertNil(err)
		defer r.Close()

		AssertEqual(count(r, "Person"), 2)
		people, _ := r.Table("Person")
		person, _ := people.FindByPrimaryKey(1)
		name, _ := person.Get("fullName")
		AssertEqual(name, "")
	})
}

func TestResetOnMigrationNeeded(t *testing.T) {
	Environment(func(filename string) {

		seedPeople(filename)

		config := testConfig(filename)
		config.Schema = personSchemaV2()
		config.SchemaVersion = 2
		config.SchemaMode = ResetOnMigrationNeeded

		r, err := Open(context.Background(), config)
		AssertNil(err)
		defer r.Close()

		version, _ := r.SchemaVersion()
		AssertEqual(version, uint64(2))
		AssertEqual(count(r, "Person"), 0)
	})
}

func TestCompactOnLaunch(t *testing.T) {
	if !compactionSupported {
		t.Skip("compaction is not supported")
	}
	Environment(func(filename string) {

		r := mustOpen(testConfig(filename))
		r.BeginTransaction(context.Background())
		dog, _ := r.CreateObject("Dog", nil)
		r.CommitTransaction()
		for i := 0; i < 20; i++ {
			r.BeginTransaction(context.Background())
			dog.Set(map[string]any{"age": i})
			r.CommitTransaction()
		}
		r.Close()

		calls := 0
		before := uint64(0)
		config := testConfig(filename)
		config.ShouldCompactOnLaunch = func(total, used uint64) bool {
			calls++
			before = total
			AssertTrue(used < total)
			return true
		}
		r = mustOpen(config)
		AssertEqual(calls, 1)
		total, _, err := r.Stats()
		AssertNil(err)
		AssertTrue(uint64(total) < before)
		r.Close()

		r = mustOpen(testConfig(filename))
		defer r.Close()
		dogs, _ := r.Table("Dog")
		found, _ := dogs.Find(dog.Key())
		age, _ := found.Get("age")
		AssertEqual(age, int64(19))
	})
}

func TestCompact(t *testing.T) {
	if !compactionSupported {
		t.Skip("compaction is not supported")
	}
	Environment(func(filename string) {

		config := testConfig(filename)
		a := mustOpen(config)
		defer a.Close()

		compacted, err := a.Compact(context.Background())
		AssertNil(err)
		AssertTrue(compacted)

		b := mustOpen(config)
		compacted, err = a.Compact(context.Background())
		AssertNil(err)
		AssertFalse(compacted)
		b.Close()

		a.BeginTransaction(context.Background())
		_, err = a.Compact(context.Background())
		AssertEqual(kindOf(err), failure.InvalidTransactionState)
		a.CancelTransaction()
	})
}

func TestWriteCopy(t *testing.T) {
	Environment(func(filename string) {

		r := mustOpen(testConfig(filename))
		defer r.Close()

		r.BeginTransaction(context.Background())
		r.CreateObjectIntUnique("Person", 7, false, map[string]any{"name": "Copied"})
		r.CommitTransaction()

		AssertEqual(kindOf(r.WriteCopy("", nil)), failure.InvalidArgument)
		AssertEqual(kindOf(r.WriteCopy(filename, nil)), failure.IOFailure)

		copyName := filename + ".copy"
		AssertNil(r.WriteCopy(copyName, nil))

		config := testConfig(copyName)
		c := mustOpen(config)
		defer c.Close()
		people, _ := c.Table("Person")
		person, _ := people.FindByPrimaryKey(7)
		name, _ := person.Get("name")
		AssertEqual(name, "Copied")
	})
}

func TestCompact_Unsupported(t *testing.T) {
	Environment(func(filename string) {

		supported := compactionSupported
		compactionSupported = false
		defer func() { compactionSupported = supported }()

		calls := 0
		config := testConfig(filename)
		config.ShouldCompactOnLaunch = func(total, used uint64) bool {
			calls++
			return true
		}

		r := mustOpen(config)
		defer r.Close()
		AssertEqual(calls, 0)

		compacted, err := r.Compact(context.Background())
		AssertEqual(kindOf(err), failure.UnsupportedOperation)
		AssertFalse(compacted)
	})
}
