package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fulldump/realmdb/binding"
	"github.com/fulldump/realmdb/failure"
	"github.com/fulldump/realmdb/realm"
	"github.com/fulldump/realmdb/schema"
)

type openRealmRequest struct {
	Path          string        `json:"path"`
	InMemory      bool          `json:"in_memory"`
	EncryptionKey string        `json:"encryption_key"` // hex, 128 chars
	SchemaMode    string        `json:"schema_mode"`
	Schema        schema.Schema `json:"schema"`
	SchemaVersion *uint64       `json:"schema_version"`
	Backend       string        `json:"backend"`
	WriteTimeout  string        `json:"write_timeout"`
}

type RealmResponse struct {
	Handle        binding.Handle `json:"handle"`
	Closed        bool           `json:"closed"`
	InTransaction bool           `json:"in_transaction"`
	Version       uint64         `json:"version"`
	SchemaVersion uint64         `json:"schema_version"`
	Schema        schema.Schema  `json:"schema"`
}

var schemaModes = []realm.SchemaMode{realm.Automatic, realm.ReadOnly, realm.ResetOnMigrationNeeded}

func parseSchemaMode(s string) (realm.SchemaMode, error) {
	if s == "" {
		return realm.Automatic, nil
	}
	for _, mode := range schemaModes {
		if mode.String() == s {
			return mode, nil
		}
	}
	return 0, failure.New(failure.InvalidArgument, "unknown schema mode '%s'", s)
}

func openRealm(ctx context.Context, w http.ResponseWriter, input *openRealmRequest) (*RealmResponse, error) {

	rt := GetRuntime(ctx)

	path, err := localPath(ctx, input.Path)
	if err != nil {
		return nil, err
	}

	key, err := decodeKey(input.EncryptionKey)
	if err != nil {
		return nil, err
	}

	mode, err := parseSchemaMode(input.SchemaMode)
	if err != nil {
		return nil, err
	}

	spec := binding.OpenSpec{
		Path:          path,
		InMemory:      input.InMemory,
		EncryptionKey: key,
		SchemaMode:    mode,
		Schema:        input.Schema,
		SchemaVersion: realm.DynamicSchema,
		Backend:       input.Backend,
	}
	if input.SchemaVersion != nil {
		spec.SchemaVersion = *input.SchemaVersion
	}
	if input.WriteTimeout != "" {
		spec.WriteTimeout, err = time.ParseDuration(input.WriteTimeout)
		if err != nil {
			return nil, failure.Wrap(failure.InvalidArgument, err, "bad write_timeout")
		}
	}

	h, result := rt.Open(spec)
	if !result.Ok {
		return nil, result.Err()
	}

	response, err := describeRealm(rt, h)
	if err != nil {
		return nil, err
	}

	w.WriteHeader(http.StatusCreated)
	return response, nil
}

func describeRealm(rt *binding.Runtime, h binding.Handle) (*RealmResponse, error) {

	response := &RealmResponse{
		Handle: h,
		Schema: schema.Schema{},
	}

	closed, result := rt.IsClosed(h)
	if !result.Ok {
		return nil, result.Err()
	}
	if closed {
		response.Closed = true
		return response, nil
	}

	if response.InTransaction, result = rt.IsInTransaction(h); !result.Ok {
		return nil, result.Err()
	}
	if response.Version, result = rt.Version(h); !result.Ok {
		return nil, result.Err()
	}
	if response.SchemaVersion, result = rt.SchemaVersion(h); !result.Ok {
		return nil, result.Err()
	}
	if response.Schema, result = rt.Schema(h); !result.Ok {
		return nil, result.Err()
	}

	return response, nil
}

func getRealm(ctx context.Context) (*RealmResponse, error) {

	h, err := realmHandle(ctx)
	if err != nil {
		return nil, err
	}

	return describeRealm(GetRuntime(ctx), h)
}

func destroyRealm(ctx context.Context, w http.ResponseWriter) error {

	h, err := realmHandle(ctx)
	if err != nil {
		return err
	}

	return GetRuntime(ctx).Destroy(h).Err()
}

func closeRealm(ctx context.Context) (*RealmResponse, error) {
	return realmAction(ctx, (*binding.Runtime).Close)
}

func begin(ctx context.Context) (*RealmResponse, error) {
	return realmAction(ctx, (*binding.Runtime).BeginTransaction)
}

func commit(ctx context.Context) (*RealmResponse, error) {
	return realmAction(ctx, (*binding.Runtime).CommitTransaction)
}

func cancel(ctx context.Context) (*RealmResponse, error) {
	return realmAction(ctx, (*binding.Runtime).CancelTransaction)
}

func realmAction(ctx context.Context, f func(rt *binding.Runtime, h binding.Handle) binding.Result) (*RealmResponse, error) {

	h, err := realmHandle(ctx)
	if err != nil {
		return nil, err
	}

	rt := GetRuntime(ctx)
	if result := f(rt, h); !result.Ok {
		return nil, result.Err()
	}

	return describeRealm(rt, h)
}

type RefreshResponse struct {
	Advanced bool   `json:"advanced"`
	Version  uint64 `json:"version"`
}

func refresh(ctx context.Context) (*RefreshResponse, error) {

	h, err := realmHandle(ctx)
	if err != nil {
		return nil, err
	}

	rt := GetRuntime(ctx)
	advanced, result := rt.Refresh(h)
	if !result.Ok {
		return nil, result.Err()
	}
	version, result := rt.Version(h)
	if !result.Ok {
		return nil, result.Err()
	}

	return &RefreshResponse{Advanced: advanced, Version: version}, nil
}

type CompactResponse struct {
	Compacted bool `json:"compacted"`
}

func compact(ctx context.Context) (*CompactResponse, error) {

	h, err := realmHandle(ctx)
	if err != nil {
		return nil, err
	}

	compacted, result := GetRuntime(ctx).Compact(h)
	if !result.Ok {
		return nil, result.Err()
	}

	return &CompactResponse{Compacted: compacted}, nil
}

type writeCopyRequest struct {
	Path          string `json:"path"`
	EncryptionKey string `json:"encryption_key"`
}

func writeCopy(ctx context.Context, w http.ResponseWriter, input *writeCopyRequest) error {

	h, err := realmHandle(ctx)
	if err != nil {
		return err
	}

	path, err := localPath(ctx, input.Path)
	if err != nil {
		return err
	}

	key, err := decodeKey(input.EncryptionKey)
	if err != nil {
		return err
	}

	if err := GetRuntime(ctx).WriteCopy(h, path, key).Err(); err != nil {
		return err
	}

	w.WriteHeader(http.StatusCreated)
	return nil
}
