package api

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/fulldump/box"

	"github.com/fulldump/realmdb/binding"
	"github.com/fulldump/realmdb/failure"
)

const ContextRuntimeKey = "6f1c2e9a-7d4b-11ef-9a40-3b1f0c6e8d21"

type runtimeValue struct {
	rt  *binding.Runtime
	dir string
}

func SetRuntime(ctx context.Context, rt *binding.Runtime, dir string) context.Context {
	return context.WithValue(ctx, ContextRuntimeKey, &runtimeValue{rt: rt, dir: dir})
}

func GetRuntime(ctx context.Context) *binding.Runtime {
	return ctx.Value(ContextRuntimeKey).(*runtimeValue).rt
}

// localPath resolves a client supplied path inside the data directory.
func localPath(ctx context.Context, name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", failure.New(failure.InvalidArgument, "path '%s' must be relative to the data directory", name)
	}
	return filepath.Join(ctx.Value(ContextRuntimeKey).(*runtimeValue).dir, name), nil
}

func decodeKey(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(key)
	if err != nil {
		return nil, failure.Wrap(failure.InvalidArgument, err, "encryption key must be hex encoded")
	}
	return b, nil
}

var ErrUnauthorized = errors.New("unauthorized")

var ErrRealmNotFound = errors.New("realm not found")

// realmHandle reads the {handle} url parameter and checks that it belongs
// to a live realm.
func realmHandle(ctx context.Context) (binding.Handle, error) {

	param := box.GetUrlParameter(ctx, "handle")
	n, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		return 0, ErrRealmNotFound
	}
	h := binding.Handle(n)

	if _, result := GetRuntime(ctx).IsClosed(h); !result.Ok {
		if result.Kind == failure.InvalidArgument {
			return 0, ErrRealmNotFound
		}
		return 0, result.Err()
	}

	return h, nil
}

func Authenticate(apiKey, apiSecret string) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			if apiKey == "" && apiSecret == "" {
				next(ctx)
				return
			}

			r := box.GetRequest(ctx)
			key := r.Header.Get("X-Api-Key")
			secret := r.Header.Get("X-Api-Secret")
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 ||
				subtle.ConstantTimeCompare([]byte(secret), []byte(apiSecret)) != 1 {
				box.SetError(ctx, ErrUnauthorized)
				return
			}

			next(ctx)
		}
	}
}

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

func (p PrettyError) MarshalTo(w io.Writer) error {
	return json.NewEncoder(w).Encode(p)
}

var kindStatus = map[failure.Kind]int{
	failure.InvalidArgument:          http.StatusBadRequest,
	failure.InvalidTransactionState:  http.StatusConflict,
	failure.DuplicatePrimaryKeyValue: http.StatusConflict,
	failure.SchemaMismatch:           http.StatusUnprocessableEntity,
	failure.SchemaVersionDowngrade:   http.StatusUnprocessableEntity,
	failure.MigrationFailed:          http.StatusUnprocessableEntity,
	failure.ReferenceMismatch:        http.StatusBadRequest,
	failure.ReferenceAlreadyConsumed: http.StatusBadRequest,
	failure.UnsupportedOperation:     http.StatusNotImplemented,
	failure.InstanceClosed:           http.StatusGone,
	failure.IOFailure:                http.StatusInternalServerError,
	failure.Busy:                     http.StatusServiceUnavailable,
}

var kindDescription = map[failure.Kind]string{
	failure.InvalidArgument:          "Invalid argument",
	failure.InvalidTransactionState:  "Operation not allowed in the current transaction state",
	failure.DuplicatePrimaryKeyValue: "Primary key already exists",
	failure.SchemaMismatch:           "Schema does not match the stored one",
	failure.SchemaVersionDowngrade:   "Schema version is older than the stored one",
	failure.MigrationFailed:          "Migration failed",
	failure.UnsupportedOperation:     "Operation not supported on this platform",
	failure.InstanceClosed:           "Realm is closed",
	failure.IOFailure:                "Storage failure",
	failure.Busy:                     "Write lock is held by another instance",
}

func writeError(w http.ResponseWriter, status int, message, description string, kind failure.Kind) {
	w.WriteHeader(status)
	body := map[string]interface{}{
		"message":     message,
		"description": description,
	}
	if kind != failure.None && kind != failure.Unknown {
		body["kind"] = kind
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": body,
	})
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		if err == ErrUnauthorized {
			writeError(w, http.StatusUnauthorized, err.Error(), "user is not authenticated", failure.None)
			return
		}

		if err == ErrRealmNotFound {
			writeError(w, http.StatusNotFound, err.Error(), fmt.Sprintf("realm '%s' not found", box.GetUrlParameter(ctx, "handle")), failure.None)
			return
		}

		if err == box.ErrResourceNotFound {
			writeError(w, http.StatusNotFound, err.Error(), fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String()), failure.None)
			return
		}

		if err == box.ErrMethodNotAllowed {
			writeError(w, http.StatusMethodNotAllowed, err.Error(), fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method), failure.None)
			return
		}

		if _, ok := err.(*json.SyntaxError); ok {
			writeError(w, http.StatusBadRequest, err.Error(), "Malformed JSON", failure.None)
			return
		}

		var ferr *failure.Error
		var dup *failure.DuplicateKeyError
		if errors.As(err, &ferr) || errors.As(err, &dup) {
			kind := failure.KindOf(err)
			status, ok := kindStatus[kind]
			if !ok {
				status = http.StatusInternalServerError
			}
			description, ok := kindDescription[kind]
			if !ok {
				description = "Unexpected error"
			}
			writeError(w, status, err.Error(), description, kind)
			return
		}

		writeError(w, http.StatusInternalServerError, err.Error(), "Unexpected error", failure.Unknown)
	}
}
