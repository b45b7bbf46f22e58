package bananabit_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-bananabit"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compose(t *testing.T, exts ...bananabit.Extension) (*bananabit.Composition, error) {
	t.Helper()
	return bananabit.Compose(exts, bananabit.WithComposeLogger(bananabit.NopLogger()))
}

func TestComposeDisjointRoutesYieldsUnion(t *testing.T) {
	auth := newTestExtension("core.auth").withRoute("GET", "/login").withRoute("POST", "/login")
	posts := newTestExtension("core.posts").withRoute("GET", "/posts").withRoute("GET", "/posts/:slug")

	comp, err := compose(t, auth, posts)
	require.NoError(t, err)

	routes := comp.Routes.Routes()
	require.Len(t, routes, 4)
	assert.Equal(t, "core.auth", routes[0].Owner)
	assert.Equal(t, "core.posts", routes[3].Owner)
	assert.Equal(t, "/posts/*", routes[3].Pattern)
}

func TestComposeAdminCollisionNamesBothExtensions(t *testing.T) {
	auth := newTestExtension("core.auth").withRoute("GET", "/admin")
	rogue := newTestExtension("acme.dashboard").withRoute("GET", "/admin/")

	_, err := compose(t, auth, rogue)
	require.Error(t, err)
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeRouteCollision))

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, "core.auth", rich.Metadata["extension_a"])
	assert.Equal(t, "acme.dashboard", rich.Metadata["extension_b"])
	assert.Contains(t, rich.Message, "core.auth")
	assert.Contains(t, rich.Message, "acme.dashboard")
}

func TestComposeRouteCollisionRules(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		collide bool
	}{
		{name: "trailing slash", a: "/admin", b: "/admin/", collide: true},
		{name: "repeated slash", a: "/posts//new", b: "/posts/new", collide: true},
		{name: "missing leading slash", a: "login", b: "/login", collide: true},
		{name: "param styles", a: "/posts/:slug", b: "/posts/{id}", collide: true},
		{name: "static against dynamic", a: "/posts/:slug", b: "/posts/new", collide: true},
		{name: "different depth", a: "/posts/:slug", b: "/posts/:slug/comments", collide: false},
		{name: "different static", a: "/posts", b: "/pages", collide: false},
		{name: "wildcard and static", a: "/uploads/*", b: "/uploads/logo.png", collide: true},
		{name: "wildcard and deeper static", a: "/files/*", b: "/files/a/b", collide: true},
		{name: "wildcard and deeper param", a: "/files/:owner/:name/raw", b: "/files/*", collide: true},
		{name: "wildcard and its prefix", a: "/files/*", b: "/files", collide: true},
		{name: "nested wildcards", a: "/files/*", b: "/files/archive/*", collide: true},
		{name: "wildcard with other prefix", a: "/files/*", b: "/uploads/a/b", collide: false},
		{name: "wildcard and shallower path", a: "/files/a/*", b: "/files", collide: false},
		{name: "no prefix heuristics", a: "/admin", b: "/admin/media", collide: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.collide, bananabit.PatternsCollide(tt.a, tt.b))

			_, err := compose(t,
				newTestExtension("core.one").withRoute("GET", tt.a),
				newTestExtension("core.two").withRoute("GET", tt.b),
			)
			if tt.collide {
				assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeRouteCollision))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestComposeWildcardShadowingIsRejected(t *testing.T) {
	_, err := compose(t,
		newTestExtension("ext.a").withRoute("GET", "/files/*"),
		newTestExtension("ext.b").withRoute("GET", "/files/a/b"),
	)
	require.Error(t, err)
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeRouteCollision))
}

func TestComposeCrossExtensionCollisionIgnoresMethod(t *testing.T) {
	_, err := compose(t,
		newTestExtension("core.auth").withRoute("GET", "/login"),
		newTestExtension("acme.sso").withRoute("POST", "/login"),
	)
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeRouteCollision))
}

func TestComposeSameExtensionMethods(t *testing.T) {
	_, err := compose(t, newTestExtension("core.auth").withRoute("GET", "/verify-email").withRoute("POST", "/verify-email"))
	assert.NoError(t, err)

	_, err = compose(t, newTestExtension("core.auth").withRoute("GET", "/login").withRoute("get", "/login/"))
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeRouteCollision))

	_, err = compose(t, newTestExtension("core.auth").withRoute("", "/login").withRoute("POST", "/login"))
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeRouteCollision), "any-method route overlaps every method")
}

func TestComposeInvalidRoutes(t *testing.T) {
	empty := newTestExtension("core.auth").withRoute("GET", "  ")
	_, err := compose(t, empty)
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeInvalidRoute))

	noHandler := newTestExtension("core.auth")
	noHandler.routes = []bananabit.Route{{Method: "GET", Path: "/login"}}
	_, err = compose(t, noHandler)
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeInvalidRoute))
}

func TestComposeIsPureAndOrdered(t *testing.T) {
	exts := []bananabit.Extension{
		newTestExtension("core.auth").withRoute("GET", "/login").withComponent("LoginForm", ""),
		newTestExtension("core.posts").withRoute("GET", "/posts").withComponent("PostList", ""),
	}

	first, err := bananabit.Compose(exts, bananabit.WithComposeLogger(bananabit.NopLogger()))
	require.NoError(t, err)
	second, err := bananabit.Compose(exts, bananabit.WithComposeLogger(bananabit.NopLogger()))
	require.NoError(t, err)

	assert.Equal(t, first.Components.Keys(), second.Components.Keys())
	require.Equal(t, first.Routes.Len(), second.Routes.Len())
	for i, rt := range first.Routes.Routes() {
		assert.Equal(t, rt.Path, second.Routes.Routes()[i].Path)
		assert.Equal(t, rt.Owner, second.Routes.Routes()[i].Owner)
	}
}

func TestComposeComponentKeyCollision(t *testing.T) {
	_, err := compose(t,
		newTestExtension("core.posts").withComponent("PostView", ""),
		newTestExtension("acme.theme").withComponent("PostView", ""),
	)
	require.Error(t, err)
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeComponentKeyCollision))

	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, "core.posts", rich.Metadata["extension_a"])
	assert.Equal(t, "acme.theme", rich.Metadata["extension_b"])
}

func TestComposeComponentDuplicateWithinExtension(t *testing.T) {
	_, err := compose(t, newTestExtension("core.posts").withComponent("PostView", "").withComponent("PostView", ""))
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeComponentKeyCollision))
}

func TestComposeComponentExplicitOverride(t *testing.T) {
	comp, err := compose(t,
		newTestExtension("core.posts").withComponent("PostView", "").withComponent("PostList", ""),
		newTestExtension("acme.theme").withComponent("PostView", "core.posts"),
	)
	require.NoError(t, err)

	got, ok := comp.Components.Lookup("PostView")
	require.True(t, ok)
	assert.Equal(t, "acme.theme", got.Owner)
	assert.Equal(t, []string{"PostView", "PostList"}, comp.Components.Keys())
	assert.Equal(t, []bananabit.Override{{Key: "PostView", Replaced: "core.posts", Replacement: "acme.theme"}},
		comp.Components.Overrides())

	html, err := comp.Components.Render(context.Background(), "PostView", nil)
	require.NoError(t, err)
	assert.Equal(t, "acme.theme:PostView", html)
}

func TestComposeComponentOverrideMustNameOwner(t *testing.T) {
	_, err := compose(t,
		newTestExtension("core.posts").withComponent("PostView", ""),
		newTestExtension("acme.theme").withComponent("PostView", "core.pages"),
	)
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeComponentKeyCollision))
}

func TestComposeInvalidComponent(t *testing.T) {
	ext := newTestExtension("core.posts")
	ext.components = []bananabit.Component{{Key: "PostView"}}
	_, err := compose(t, ext)
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeInvalidComponent))
}

func TestComponentRegistryRenderUnknownKey(t *testing.T) {
	comp, err := compose(t, newTestExtension("core.posts").withComponent("PostView", ""))
	require.NoError(t, err)

	_, err = comp.Components.Render(context.Background(), "Missing", nil)
	assert.True(t, bananabit.HasTextCode(err, bananabit.TextCodeComponentNotFound))
}
