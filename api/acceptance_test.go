package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"

	"github.com/fulldump/realmdb/binding"
)

type JSON = map[string]interface{}

var personSchema = []JSON{
	{
		"name":        "Person",
		"primary_key": "id",
		"properties": []JSON{
			{"name": "id", "type": "int", "indexed": true},
			{"name": "name", "type": "string"},
		},
	},
}

func errorKind(resp *apitest.Response) interface{} {
	body, _ := resp.BodyJson().(JSON)
	e, _ := body["error"].(JSON)
	return e["kind"]
}

func TestAcceptance(t *testing.T) {

	biff.Alternative("Setup", func(a *biff.A) {

		rt := binding.New(nil, nil)
		defer rt.Stop()

		b := Build(rt, Options{Dir: t.TempDir(), Version: "test"})
		b.WithInterceptors(
			RecoverFromPanic,
			PrettyErrorInterceptor,
		)

		api := apitest.NewWithHandler(b)

		resp := api.Request("POST", "/v1/realms").
			WithBodyJson(JSON{
				"path":           "people.realm",
				"schema":         personSchema,
				"schema_version": 1,
			}).Do()
		biff.AssertEqual(resp.StatusCode, http.StatusCreated)

		opened := resp.BodyJson().(JSON)
		biff.AssertEqual(opened["handle"], float64(1))
		biff.AssertEqual(opened["closed"], false)
		biff.AssertEqual(opened["in_transaction"], false)
		biff.AssertEqual(opened["schema_version"], float64(1))
		biff.AssertEqualJson(opened["schema"], personSchema)

		a.Alternative("Retrieve realm", func(a *biff.A) {
			resp := api.Request("GET", "/v1/realms/1").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), opened)
		})

		a.Alternative("Retrieve table", func(a *biff.A) {
			resp := api.Request("GET", "/v1/realms/1/tables/Person").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{"name": "Person", "count": 0})
		})

		a.Alternative("Unknown table", func(a *biff.A) {
			resp := api.Request("GET", "/v1/realms/1/tables/Dog").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
			biff.AssertEqual(errorKind(resp), "InvalidArgument")
		})

		a.Alternative("Unknown realm", func(a *biff.A) {
			resp := api.Request("GET", "/v1/realms/99").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		})

		a.Alternative("Path outside data directory", func(a *biff.A) {
			resp := api.Request("POST", "/v1/realms").
				WithBodyJson(JSON{"path": "../escape.realm"}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Create outside a transaction", func(a *biff.A) {
			resp := api.Request("POST", "/v1/realms/1/tables/Person:createUnique").
				WithBodyJson(JSON{"key": 5}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusConflict)
			biff.AssertEqual(errorKind(resp), "InvalidTransactionState")
		})

		a.Alternative("Schema downgrade", func(a *biff.A) {
			resp := api.Request("POST", "/v1/realms").
				WithBodyJson(JSON{
					"path":           "people.realm",
					"schema":         personSchema,
					"schema_version": 0,
				}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusUnprocessableEntity)
			biff.AssertEqual(errorKind(resp), "SchemaVersionDowngrade")
		})

		a.Alternative("Begin transaction", func(a *biff.A) {
			resp := api.Request("POST", "/v1/realms/1:begin").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqual(resp.BodyJson().(JSON)["in_transaction"], true)

			resp = api.Request("POST", "/v1/realms/1/tables/Person:createUnique").
				WithBodyJson(JSON{
					"key":    5,
					"values": JSON{"name": "Fulanez"},
				}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusCreated)
			created := resp.BodyJson().(JSON)
			biff.AssertEqual(created["is_new"], true)
			biff.AssertEqualJson(created["values"], JSON{"id": 5, "name": "Fulanez"})

			a.Alternative("Duplicate primary key", func(a *biff.A) {
				resp := api.Request("POST", "/v1/realms/1/tables/Person:createUnique").
					WithBodyJson(JSON{"key": 5}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusConflict)
				biff.AssertEqualJson(resp.BodyJson(), JSON{
					"error": JSON{
						"kind":        "DuplicatePrimaryKeyValue",
						"message":     "attempting to create an object of type 'Person' with an existing primary key value '5' in column 'id'",
						"description": "Primary key already exists",
					},
				})
			})

			a.Alternative("Update existing", func(a *biff.A) {
				resp := api.Request("POST", "/v1/realms/1/tables/Person:createUnique").
					WithBodyJson(JSON{
						"key":    5,
						"update": true,
						"values": JSON{"name": "Menganez"},
					}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqual(resp.BodyJson().(JSON)["is_new"], false)
				biff.AssertEqualJson(resp.BodyJson().(JSON)["values"], JSON{"id": 5, "name": "Menganez"})
			})

			a.Alternative("Null key on a non nullable column", func(a *biff.A) {
				resp := api.Request("POST", "/v1/realms/1/tables/Person:createUnique").
					WithBodyJson(JSON{"key": nil}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
				biff.AssertEqual(resp.BodyJson().(JSON)["error"].(JSON)["message"], "Column is not nullable")
			})

			a.Alternative("Commit", func(a *biff.A) {
				resp := api.Request("POST", "/v1/realms/1:commit").Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqual(resp.BodyJson().(JSON)["in_transaction"], false)

				resp = api.Request("POST", "/v1/realms/1/tables/Person:find").
					WithBodyJson(JSON{"filter": JSON{"name": "Fulanez"}}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqual(len(resp.BodyJson().([]interface{})), 1)

				resp = api.Request("POST", "/v1/realms/1/tables/Person:find").
					WithBodyJson(JSON{"key": 5}).Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				found := resp.BodyJson().([]interface{})
				biff.AssertEqual(len(found), 1)
				biff.AssertEqualJson(found[0].(JSON)["values"], JSON{"id": 5, "name": "Fulanez"})

				resp = api.Request("GET", "/v1/realms/1/tables/Person").Do()
				biff.AssertEqualJson(resp.BodyJson(), JSON{"name": "Person", "count": 1})

				a.Alternative("Other instance sees the commit", func(a *biff.A) {
					resp := api.Request("POST", "/v1/realms").
						WithBodyJson(JSON{
							"path":           "people.realm",
							"schema":         personSchema,
							"schema_version": 1,
						}).Do()
					biff.AssertEqual(resp.StatusCode, http.StatusCreated)
					other := resp.BodyJson().(JSON)["handle"].(float64)

					resp = api.Request("GET", fmt.Sprintf("/v1/realms/%d/tables/Person", int(other))).Do()
					biff.AssertEqualJson(resp.BodyJson(), JSON{"name": "Person", "count": 1})
				})

				a.Alternative("Write copy", func(a *biff.A) {
					resp := api.Request("POST", "/v1/realms/1:writeCopy").
						WithBodyJson(JSON{"path": "copy.realm"}).Do()
					biff.AssertEqual(resp.StatusCode, http.StatusCreated)

					resp = api.Request("POST", "/v1/realms").
						WithBodyJson(JSON{"path": "copy.realm"}).Do()
					biff.AssertEqual(resp.StatusCode, http.StatusCreated)
					biff.AssertEqual(resp.BodyJson().(JSON)["schema_version"], float64(1))
				})
			})

			a.Alternative("Cancel", func(a *biff.A) {
				resp := api.Request("POST", "/v1/realms/1:cancel").Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)

				resp = api.Request("POST", "/v1/realms/1/tables/Person:find").
					WithBodyJson(JSON{}).Do()
				biff.AssertEqualJson(resp.BodyJson(), []JSON{})
			})

			a.Alternative("Compact inside a transaction", func(a *biff.A) {
				resp := api.Request("POST", "/v1/realms/1:compact").Do()
				biff.AssertEqual(resp.StatusCode, http.StatusConflict)
			})
		})

		a.Alternative("Refresh", func(a *biff.A) {
			resp := api.Request("POST", "/v1/realms/1:refresh").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqual(resp.BodyJson().(JSON)["advanced"], false)
		})

		a.Alternative("Compact", func(a *biff.A) {
			resp := api.Request("POST", "/v1/realms/1:compact").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{"compacted": true})
		})

		a.Alternative("Close", func(a *biff.A) {
			resp := api.Request("POST", "/v1/realms/1:close").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"handle":         1,
				"closed":         true,
				"in_transaction": false,
				"version":        0,
				"schema_version": 0,
				"schema":         []JSON{},
			})

			resp = api.Request("POST", "/v1/realms/1:begin").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusGone)
			biff.AssertEqual(errorKind(resp), "InstanceClosed")
		})

		a.Alternative("Destroy", func(a *biff.A) {
			resp := api.Request("DELETE", "/v1/realms/1").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = api.Request("GET", "/v1/realms/1").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		})
	})
}
