package api

import (
	"context"
	"net/http"

	"github.com/fulldump/box"
	"github.com/fulldump/box/boxopenapi"

	"github.com/fulldump/realmdb/binding"
)

type Options struct {
	// Dir is where realm files opened through the api live. Paths sent by
	// clients are relative to it.
	Dir       string
	Version   string
	ApiKey    string
	ApiSecret string
}

func Build(rt *binding.Runtime, options Options) *box.B {

	b := box.NewBox()

	v1 := b.Resource("/v1")
	v1.WithInterceptors(
		box.SetResponseHeader("Content-Type", "application/json"),
		Authenticate(options.ApiKey, options.ApiSecret),
		injectRuntime(rt, options.Dir),
	)

	v1.Resource("/realms").
		WithActions(
			box.Post(openRealm),
		)

	v1.Resource("/realms/{handle}").
		WithActions(
			box.Get(getRealm),
			box.Delete(destroyRealm),
			box.ActionPost(closeRealm).WithName("close"),
			box.ActionPost(begin),
			box.ActionPost(commit),
			box.ActionPost(cancel),
			box.ActionPost(refresh),
			box.ActionPost(compact),
			box.ActionPost(writeCopy),
		)

	v1.Resource("/realms/{handle}/tables/{type}").
		WithActions(
			box.Get(getTable),
			box.ActionPost(create),
			box.ActionPost(createUnique),
			box.ActionPost(find),
		)

	b.Resource("/v1/*").
		WithActions(box.AnyMethod(func(w http.ResponseWriter) interface{} {
			w.WriteHeader(http.StatusNotImplemented)
			return PrettyError{
				Message:     "not implemented",
				Description: "this endpoint does not exist, please check the documentation",
			}
		}))

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return options.Version
		}))

	spec := boxopenapi.Spec(b)
	spec.Info.Title = "RealmDB"
	spec.Info.Description = "Embedded object database with shared instances, migrations and thread-safe references."
	b.Handle("GET", "/openapi.json", func(r *http.Request) any {

		spec.Servers = []boxopenapi.Server{
			{
				Url: "https://" + r.Host,
			},
			{
				Url: "http://" + r.Host,
			},
		}

		return spec
	})

	return b
}

func injectRuntime(rt *binding.Runtime, dir string) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(SetRuntime(ctx, rt, dir))
		}
	}
}
