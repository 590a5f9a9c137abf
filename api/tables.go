package api

import (
	"context"
	"math"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/realmdb/binding"
	"github.com/fulldump/realmdb/failure"
)

// withTable runs f with a table handle that is released afterwards.
func withTable(ctx context.Context, f func(rt *binding.Runtime, table binding.Handle) error) error {

	h, err := realmHandle(ctx)
	if err != nil {
		return err
	}

	rt := GetRuntime(ctx)
	table, result := rt.GetTable(h, box.GetUrlParameter(ctx, "type"))
	if !result.Ok {
		return result.Err()
	}
	defer rt.Release(table)

	return f(rt, table)
}

type TableResponse struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func getTable(ctx context.Context) (response *TableResponse, err error) {
	err = withTable(ctx, func(rt *binding.Runtime, table binding.Handle) error {
		count, result := rt.TableCount(table)
		if !result.Ok {
			return result.Err()
		}
		response = &TableResponse{
			Name:  box.GetUrlParameter(ctx, "type"),
			Count: count,
		}
		return nil
	})
	return
}

type ObjectResponse struct {
	Key    int64          `json:"key"`
	IsNew  bool           `json:"is_new"`
	Values map[string]any `json:"values"`
}

// objectResponse reads the object behind h and releases it.
func objectResponse(rt *binding.Runtime, h binding.Handle, isNew bool) (*ObjectResponse, error) {
	defer rt.Release(h)
	record, result := rt.ObjectValues(h)
	if !result.Ok {
		return nil, result.Err()
	}
	return &ObjectResponse{
		Key:    record.Key,
		IsNew:  isNew,
		Values: record.Values,
	}, nil
}

type createRequest struct {
	Values map[string]any `json:"values"`
}

func create(ctx context.Context, w http.ResponseWriter, input *createRequest) (response *ObjectResponse, err error) {
	err = withTable(ctx, func(rt *binding.Runtime, table binding.Handle) error {
		object, result := rt.CreateObject(table, input.Values)
		if !result.Ok {
			return result.Err()
		}
		response, err = objectResponse(rt, object, true)
		return err
	})
	if err == nil {
		w.WriteHeader(http.StatusCreated)
	}
	return
}

type createUniqueRequest struct {
	Key    any            `json:"key"`
	Update bool           `json:"update"`
	Values map[string]any `json:"values"`
}

func createUnique(ctx context.Context, w http.ResponseWriter, input *createUniqueRequest) (response *ObjectResponse, err error) {
	err = withTable(ctx, func(rt *binding.Runtime, table binding.Handle) error {

		var object binding.Handle
		var isNew bool
		var result binding.Result

		switch key := input.Key.(type) {
		case nil:
			object, isNew, result = rt.CreateObjectNullUnique(table, input.Update, input.Values)
		case string:
			object, isNew, result = rt.CreateObjectStringUnique(table, key, input.Update, input.Values)
		case float64:
			if key != math.Trunc(key) || math.Abs(key) > 1<<53 {
				return failure.New(failure.InvalidArgument, "primary key %v is not an integer", key)
			}
			object, isNew, result = rt.CreateObjectIntUnique(table, int64(key), input.Update, input.Values)
		default:
			return failure.New(failure.InvalidArgument, "primary key must be a string, an integer or null")
		}
		if !result.Ok {
			return result.Err()
		}

		response, err = objectResponse(rt, object, isNew)
		return err
	})
	if err == nil && response.IsNew {
		w.WriteHeader(http.StatusCreated)
	}
	return
}

type findRequest struct {
	Filter map[string]any `json:"filter"`
	Key    any            `json:"key"`
}

// find returns the objects matching filter, or the object with the given
// primary key when key is present.
func find(ctx context.Context, input *findRequest) (records []binding.Record, err error) {
	err = withTable(ctx, func(rt *binding.Runtime, table binding.Handle) error {

		if input.Key != nil {
			records = []binding.Record{}
			object, result := rt.FindByPrimaryKey(table, input.Key)
			if !result.Ok {
				return result.Err()
			}
			if object == 0 {
				return nil
			}
			defer rt.Release(object)
			record, result := rt.ObjectValues(object)
			if !result.Ok {
				return result.Err()
			}
			records = append(records, record)
			return nil
		}

		var result binding.Result
		records, result = rt.Query(table, input.Filter)
		return result.Err()
	})
	return
}
