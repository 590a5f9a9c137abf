package realm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/realmdb/engine"
	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/schema"
)

func Environment(f func(filename string)) {
	dir, err := os.MkdirTemp("", "realmdb-realm-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)
	f(filepath.Join(dir, "test.realm"))
}

func personSchema() schema.Schema {
	return schema.Schema{
		{
			Name: "Dog",
			Properties: []schema.Property{
				{Name: "name", Type: schema.TypeString},
				{Name: "age", Type: schema.TypeInt},
			},
		},
		{
			Name:       "Person",
			PrimaryKey: "id",
			Properties: []schema.Property{
				{Name: "id", Type: schema.TypeInt, Indexed: true},
				{Name: "name", Type: schema.TypeString},
				{Name: "dog", Type: schema.TypeObject, ObjectType: "Dog", Nullable: true},
				{Name: "dogs", Type: schema.TypeList, ObjectType: "Dog"},
			},
		},
	}
}

func testConfig(filename string) Config {
	return Config{
		Path:          filename,
		Schema:        personSchema(),
		SchemaVersion: 1,
		Registry:      engine.NewRegistry(),
	}
}

func mustOpen(config Config) *Realm {
	r, err := Open(context.Background(), config)
	if err != nil {
		panic(err)
	}
	return r
}

func count(r *Realm, table string) int {
	t, err := r.Table(table)
	if err != nil {
		panic(err)
	}
	n, err := t.Count()
	if err != nil {
		panic(err)
	}
	return n
}

func kindOf(err error) failure.Kind {
	return failure.KindOf(err)
}

func TestOpen_CreatesSchema(t *testing.T) {
	Environment(func(filename string) {

		r := mustOpen(testConfig(filename))
		defer r.Close()

		version, err := r.SchemaVersion()
		AssertNil(err)
		AssertEqual(version, uint64(1))
		AssertEqual(r.State(), Reading)

		s, _ := r.Schema()
		AssertEqual(s.Names(), []string{"Dog", "Person"})

		_, err = r.Table("Cat")
		AssertEqual(kindOf(err), failure.InvalidArgument)
	})
}

func TestCreateObjectUnique_Scenario(t *testing.T) {
	Environment(func(filename string) {

		ctx := context.Background()
		r := mustOpen(testConfig(filename))
		defer r.Close()

		AssertNil(r.BeginTransaction(ctx))
		created, isNew, err := r.CreateObjectIntUnique("Person", 5, false, map[string]any{"name": "Fulanez"})
		AssertNil(err)
		AssertTrue(isNew)
		AssertNil(r.CommitTransaction())

		AssertNil(r.BeginTransaction(ctx))
		_, isNew, err = r.CreateObjectIntUnique("Person", 5, false, nil)
		AssertFalse(isNew)
		AssertEqual(kindOf(err), failure.DuplicatePrimaryKeyValue)
		AssertTrue(errors.Is(err, failure.ErrDuplicatePrimaryKeyValue))
		AssertEqual(err.Error(), "attempting to create an object of type 'Person' with an existing primary key value '5' in column 'id'")
		AssertEqual(count(r, "Person"), 1)
		AssertNil(r.CancelTransaction())

		AssertNil(r.BeginTransaction(ctx))
		existing, isNew, err := r.CreateObjectIntUnique("Person", 5, true, nil)
		AssertNil(err)
		AssertFalse(isNew)
		AssertEqual(existing.Key(), created.Key())
		name, _ := existing.Get("name")
		AssertEqual(name, "Fulanez")
		AssertNil(r.CommitTransaction())

		AssertEqual(count(r, "Person"), 1)
	})
}

func TestCreateObjectUnique_TryUpdateMergesValues(t *testing.T) {
	Environment(func(filename string) {

		r := mustOpen(testConfig(filename))
		defer r.Close()

		AssertNil(r.BeginTransaction(context.Background()))
		defer r.CancelTransaction()

		first, _, _ := r.CreateObjectIntUnique("Person", 1, true, map[string]any{"name": "A"})
		second, isNew, err := r.CreateObjectIntUnique("Person", 1, true, map[string]any{"name": "B"})
		AssertNil(err)
		AssertFalse(isNew)
		AssertEqual(second.Key(), first.Key())
		name, _ := first.Get("name")
		AssertEqual(name, "B")
	})
}

func TestCreateObjectUnique_Keys(t *testing.T) {
	Environment(func(filename string) {

		config := testConfig(filename)
		config.Schema = append(config.Schema,
			schema.ObjectSchema{
				Name:       "Tag",
				PrimaryKey: "label",
				Properties: []schema.Property{
					{Name: "label", Type: schema.TypeString, Nullable: true},
				},
			},
		)
		r := mustOpen(config)
		defer r.Close()

		AssertNil(r.BeginTransaction(context.Background()))
		defer r.CancelTransaction()

		Alternative("Null key on a non nullable column", func(a *A) {
			_, _, err := r.CreateObjectNullUnique("Person", false, nil)
			AssertEqual(kindOf(err), failure.InvalidArgument)
			AssertEqual(err.Error(), "Column is not nullable")
			AssertEqual(count(r, "Person"), 0)
		})

		Alternative("Null key on a nullable column", func(a *A) {
			_, isNew, err := r.CreateObjectNullUnique("Tag", false, nil)
			AssertNil(err)
			AssertTrue(isNew)
			_, _, err = r.CreateObjectNullUnique("Tag", false, nil)
			AssertEqual(err.Error(), "attempting to create an object of type 'Tag' with an existing primary key value 'null' in column 'label'")
		})

		Alternative("String keys", func(a *A) {
			_, isNew, err := r.CreateObjectStringUnique("Tag", "go", false, nil)
			AssertNil(err)
			AssertTrue(isNew)
			_, _, err = r.CreateObjectStringUnique("Tag", "go", false, nil)
			AssertEqual(err.Error(), "attempting to create an object of type 'Tag' with an existing primary key value 'go' in column 'label'")
		})

		Alternative("Key of the wrong type", func(a *A) {
			_, _, err := r.CreateObjectStringUnique("Person", "5", false, nil)
			AssertEqual(kindOf(err), failure.InvalidArgument)
			_, _, err = r.CreateObjectIntUnique("Tag", 5, false, nil)
			AssertEqual(kindOf(err), failure.InvalidArgument)
		})

		Alternative("No primary key", func(a *A) {
			_, _, err := r.CreateObjectIntUnique("Dog", 5, false, nil)
			AssertEqual(kindOf(err), failure.InvalidArgument)
		})

		Alternative("Create uses the default key", func(a *A) {
			_, err := r.CreateObject("Person", map[string]any{"name": "Zero"})
			AssertNil(err)
			_, err = r.CreateObject("Person", nil)
			AssertEqual(kindOf(err), failure.DuplicatePrimaryKeyValue)
			AssertEqual(count(r, "Person"), 1)
		})
	})
}

func TestTransactions_Guards(t *testing.T) {
	Environment(func(filename string) {

		ctx := context.Background()
		r := mustOpen(testConfig(filename))
		defer r.Close()

		_, err := r.CreateObject("Dog", nil)
		AssertEqual(kindOf(err), failure.InvalidTransactionState)
		AssertEqual(kindOf(r.CommitTransaction()), failure.InvalidTransactionState)
		AssertEqual(kindOf(r.CancelTransaction()), failure.InvalidTransactionState)

		AssertNil(r.BeginTransaction(ctx))
		AssertTrue(r.IsInTransaction())
		AssertEqual(kindOf(r.BeginTransaction(ctx)), failure.InvalidTransactionState)
		dog, err := r.CreateObject("Dog", map[string]any{"name": "Rex"})
		AssertNil(err)
		AssertNil(r.CommitTransaction())
		AssertFalse(r.IsInTransaction())

		err = dog.Set(map[string]any{"age": 3})
		AssertEqual(kindOf(err), failure.InvalidTransactionState)
		err = dog.Delete()
		AssertEqual(kindOf(err), failure.InvalidTransactionState)

		AssertNil(r.BeginTransaction(ctx))
		defer r.CancelTransaction()
		person, _, _ := r.CreateObjectIntUnique("Person", 1, false, nil)
		err = person.Set(map[string]any{"id": 2})
		AssertEqual(kindOf(err), failure.InvalidArgument)
	})
}

func TestCancelTransaction_Restores(t *testing.T) {
	Environment(func(filename string) {

		ctx := context.Background()
		r := mustOpen(testConfig(filename))
		defer r.Close()

		AssertNil(r.BeginTransaction(ctx))
		rex, _ := r.CreateObject("Dog", map[string]any{"name": "Rex", "age": 2})
		AssertNil(r.CommitTransaction())
		before, _ := r.Version()

		AssertNil(r.BeginTransaction(ctx))
		AssertNil(rex.Set(map[string]any{"age": 10}))
		r.CreateObject("Dog", map[string]any{"name": "Tob"})
		r.CreateObjectIntUnique("Person", 1, false, nil)
		AssertEqual(count(r, "Dog"), 2)
		AssertNil(r.CancelTransaction())

		after, _ := r.Version()
		AssertEqual(after, before)
		AssertEqual(count(r, "Dog"), 1)
		AssertEqual(count(r, "Person"), 0)
		age, _ := rex.Get("age")
		AssertEqual(age, int64(2))
	})
}

func TestLinksAndLists(t *testing.T) {
	Environment(func(filename string) {

		r := mustOpen(testConfig(filename))
		defer r.Close()

		AssertNil(r.BeginTransaction(context.Background()))
		defer r.CancelTransaction()

		rex, _ := r.CreateObject("Dog", map[string]any{"name": "Rex"})
		tob, _ := r.CreateObject("Dog", map[string]any{"name": "Tob"})
		person, _, _ := r.CreateObjectIntUnique("Person", 1, false, nil)

		AssertNil(person.SetObject("dog", rex))
		dog, err := person.GetObject("dog")
		AssertNil(err)
		AssertEqual(dog.Key(), rex.Key())

		dogs, err := person.List("dogs")
		AssertNil(err)
		AssertNil(dogs.Add(tob))
		AssertNil(dogs.Insert(0, rex))
		keys, _ := dogs.Keys()
		AssertEqual(keys, []int64{rex.Key(), tob.Key()})

		err = person.Set(map[string]any{"dog": int64(999)})
		AssertEqual(kindOf(err), failure.InvalidArgument)

		AssertNil(rex.Delete())
		AssertFalse(rex.IsValid())
		dog, _ = person.GetObject("dog")
		AssertNil(dog)
		keys, _ = dogs.Keys()
		AssertEqual(keys, []int64{tob.Key()})

		AssertNil(dogs.Remove(0))
		n, _ := dogs.Len()
		AssertEqual(n, 0)
	})
}

func TestResults_Where(t *testing.T) {
	Environment(func(filename string) {

		r := mustOpen(testConfig(filename))
		defer r.Close()

		AssertNil(r.BeginTransaction(context.Background()))
		for i, name := range []string{"Rex", "Tob", "Bob"} {
			r.CreateObject("Dog", map[string]any{"name": name, "age": i + 1})
		}
		AssertNil(r.CommitTransaction())

		dogs, _ := r.Table("Dog")
		old, err := dogs.Where(map[string]any{"age": map[string]any{"$gt": float64(1)}})
		AssertNil(err)
		n, err := old.Len()
		AssertNil(err)
		AssertEqual(n, 2)

		bob, err := old.Filter(map[string]any{"name": "Bob"}).Get(0)
		AssertNil(err)
		name, _ := bob.Get("name")
		AssertEqual(name, "Bob")

		all, _ := dogs.All()
		objects, _ := all.Objects()
		AssertEqual(len(objects), 3)
	})
}

func TestSchemaMismatch(t *testing.T) {
	Environment(func(filename string) {

		r := mustOpen(testConfig(filename))
		r.Close()

		config := testConfig(filename)
		config.Schema[0].Properties[1].Type = schema.TypeString
		_, err := Open(context.Background(), config)
		AssertEqual(kindOf(err), failure.SchemaMismatch)

		config = testConfig(filename)
		config.Schema = append(config.Schema, schema.ObjectSchema{
			Name:       "Cat",
			Properties: []schema.Property{{Name: "name", Type: schema.TypeString}},
		})
		r, err = Open(context.Background(), config)
		AssertNil(err)
		s, _ := r.Schema()
		AssertEqual(s.Names(), []string{"Dog", "Person", "Cat"})
		r.Close()
	})
}

func TestSchemaVersionDowngrade(t *testing.T) {
	Environment(func(filename string) {

		config := testConfig(filename)
		config.SchemaVersion = 3
		r := mustOpen(config)
		r.Close()

		_, err := Open(context.Background(), testConfig(filename))
		AssertEqual(kindOf(err), failure.SchemaVersionDowngrade)
	})
}

func TestReadOnly(t *testing.T) {
	Environment(func(filename string) {

		config := testConfig(filename)
		config.SchemaMode = ReadOnly

		_, err := Open(context.Background(), config)
		AssertEqual(kindOf(err), failure.SchemaMismatch)

		mustOpen(testConfig(filename)).Close()

		r, err := Open(context.Background(), config)
		AssertNil(err)
		defer r.Close()
		AssertEqual(kindOf(r.BeginTransaction(context.Background())), failure.InvalidTransactionState)
	})
}

func TestDynamicSchema(t *testing.T) {
	Environment(func(filename string) {

		mustOpen(testConfig(filename)).Close()

		r, err := Open(context.Background(), Config{Path: filename, SchemaVersion: DynamicSchema})
		AssertNil(err)
		defer r.Close()
		version, _ := r.SchemaVersion()
		AssertEqual(version, uint64(1))

		_, err = Open(context.Background(), Config{Path: filename, SchemaVersion: DynamicSchema, Schema: personSchema()})
		AssertEqual(kindOf(err), failure.InvalidArgument)
	})
}

func TestInvalidConfig(t *testing.T) {

	_, err := Open(context.Background(), Config{InMemory: true, EncryptionKey: []byte("short")})
	AssertEqual(kindOf(err), failure.InvalidArgument)

	_, err = Open(context.Background(), Config{})
	AssertEqual(kindOf(err), failure.InvalidArgument)
}

func TestInMemory(t *testing.T) {

	registry := engine.NewRegistry()
	config := Config{Path: "shared", InMemory: true, Schema: personSchema(), SchemaVersion: 1, Registry: registry}

	a := mustOpen(config)
	b := mustOpen(config)

	AssertNil(a.BeginTransaction(context.Background()))
	a.CreateObject("Dog", nil)
	AssertNil(a.CommitTransaction())

	advanced, _ := b.Refresh()
	AssertTrue(advanced)
	AssertEqual(count(b, "Dog"), 1)

	a.Close()
	b.Close()

	c := mustOpen(config)
	defer c.Close()
	AssertEqual(count(c, "Dog"), 0)
}
