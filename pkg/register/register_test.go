package register

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-wamp-api/pkg/callctx"
	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/depends"
	"github.com/jdziat/simple-wamp-api/pkg/schema"
)

type userCreate struct {
	schema.Model
	Email    string `json:"email" required:"true"`
	Password string `json:"password" required:"true"`
}

type userGet struct {
	schema.Model
	Email    string `json:"email" required:"true"`
	IsActive bool   `json:"is_active" required:"true"`
	ID       int    `json:"id" required:"true"`
}

type userRow struct {
	ID       int
	Email    string
	Password string
	IsActive bool
}

type tracker struct {
	acquired int
	released []error
}

func (tr *tracker) dependency() *depends.Dependency {
	return depends.MustDepends(func(ctx context.Context) (*tracker, func(error) error, error) {
		tr.acquired++
		return tr, func(err error) error {
			tr.released = append(tr.released, err)
			return nil
		}, nil
	})
}

func call(t *testing.T, p *Procedure, inv *core.Invocation) (any, error) {
	t.Helper()
	return p.Handler(context.Background(), inv)
}

func requireAppError(t *testing.T, err error, uri string) *core.ApplicationError {
	t.Helper()
	require.Error(t, err)
	var appErr *core.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, uri, appErr.URI)
	return appErr
}

// ---------------------------------------------------------------------------
// Registration-time validation
// ---------------------------------------------------------------------------

func echoName(firstName string) (string, error) { return firstName, nil }

type accountsAPI struct{}

func (accountsAPI) ListUsers(ctx context.Context) ([]userRow, error) { return nil, nil }

func TestRegister_DefaultURI(t *testing.T) {
	p, err := Register(echoName, Arg("first_name"))
	require.NoError(t, err)
	assert.Equal(t, "echo_name", p.URI())

	p, err = Register(accountsAPI{}.ListUsers)
	require.NoError(t, err)
	assert.Equal(t, "list_users", p.URI())
}

func TestRegister_ExplicitURI(t *testing.T) {
	p, err := Register(echoName, URI("com.thing.echo"), Arg("first_name"))
	require.NoError(t, err)
	assert.Equal(t, "com.thing.echo", p.URI())
	assert.Nil(t, p.Route.ResponseFields())
}

func TestRegister_RejectsInvalidURI(t *testing.T) {
	for _, uri := range []string{"has space", "a..b", "#bad"} {
		_, err := Register(echoName, URI(uri), Arg("first_name"))
		require.Error(t, err, uri)
		assert.ErrorIs(t, err, core.ErrInvalidURI)
	}
}

func TestRegister_RejectsInvalidResponseSchema(t *testing.T) {
	_, err := Register(echoName, Arg("first_name"), ResponseSchema(userRow{}))
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, core.ErrInvalidResponseSchema)

	_, err = Register(echoName, Arg("first_name"), ResponseSchema(nil))
	assert.ErrorIs(t, err, core.ErrInvalidResponseSchema)
}

func TestRegister_ResponseSchemaForms(t *testing.T) {
	for _, v := range []any{userGet{}, &userGet{}, reflect.TypeOf(userGet{})} {
		p, err := Register(echoName, Arg("first_name"), ResponseSchema(v))
		require.NoError(t, err)
		assert.Equal(t, []string{"email", "id", "is_active"}, p.Route.ResponseFields())
		assert.True(t, p.Route.HasResponseField("is_active"))
	}
}

func TestRegister_RejectsInvalidRoles(t *testing.T) {
	_, err := Register(echoName, Arg("first_name"), AllowedRoles())
	assert.ErrorIs(t, err, core.ErrInvalidRoles)

	_, err = Register(echoName, Arg("first_name"), AllowedRoles("admin", " "))
	assert.ErrorIs(t, err, core.ErrInvalidRoles)

	_, err = Register(echoName, Arg("first_name"), RoleDelimiter(""))
	assert.ErrorIs(t, err, core.ErrInvalidRoles)
}

func TestRegister_DuplicateSchemaIsConfigError(t *testing.T) {
	fn := func(a userCreate, b userGet) error { return nil }
	_, err := Register(fn, Arg("a"), Arg("b"))
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, core.ErrDuplicateSchema)
}

func TestRegister_UntypedParameterIsConfigError(t *testing.T) {
	fn := func(a int, b any) error { return nil }
	_, err := Register(fn, Arg("a"), Arg("b"))
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, core.ErrUntypedParameter)
}

func TestMustRegister_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustRegister("not a function")
	})
	assert.NotPanics(t, func() {
		MustRegister(echoName, Arg("first_name"))
	})
}

// ---------------------------------------------------------------------------
// Argument validation
// ---------------------------------------------------------------------------

func TestCall_AggregatesInvalidParams(t *testing.T) {
	p := MustRegister(func(a int, b string) error { return nil }, Arg("a"), Arg("b"))

	_, err := call(t, p, &core.Invocation{Kwargs: map[string]any{"a": "1", "b": 2}})
	appErr := requireAppError(t, err, core.CodeInvalidParams)
	assert.Equal(t, []any{
		"'a' expected type=int got=string",
		"'b' expected type=string got=int",
	}, appErr.Args)
}

func TestCall_Positional(t *testing.T) {
	p := MustRegister(echoName, Arg("first_name"))

	result, err := call(t, p, &core.Invocation{Args: []any{"hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}

func TestCall_NilInvocation(t *testing.T) {
	p := MustRegister(func() (string, error) { return "ok", nil })

	result, err := call(t, p, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestCall_SchemaFailureIsInvalidArgument(t *testing.T) {
	p := MustRegister(func(user userCreate) error { return nil }, Arg("user"))

	_, err := call(t, p, &core.Invocation{Kwargs: map[string]any{"email": "a@b.c"}})
	appErr := requireAppError(t, err, core.CodeInvalidArgument)
	require.Len(t, appErr.Args, 1)
	assert.Contains(t, appErr.Args[0], "password")
	assert.Contains(t, appErr.Args[0], "value_error.missing")
}

func TestCall_SchemaIsBuiltFromKwargs(t *testing.T) {
	var got userCreate
	p := MustRegister(func(user userCreate, note string) error {
		got = user
		return nil
	}, Arg("user"), Kwarg("note", ""))

	_, err := call(t, p, &core.Invocation{Kwargs: map[string]any{"email": "a@b.c", "password": "pw", "note": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", got.Email)
	assert.Equal(t, "pw", got.Password)
}

// ---------------------------------------------------------------------------
// Authorization
// ---------------------------------------------------------------------------

func TestCall_RoleIntersection(t *testing.T) {
	p := MustRegister(func() (string, error) { return "ok", nil }, AllowedRoles("admin", "user"))

	cases := []struct {
		name    string
		details *core.CallDetails
		allowed bool
	}{
		{"one shared role", &core.CallDetails{CallerAuthRole: "guest,user"}, true},
		{"shared role with spaces", &core.CallDetails{CallerAuthRole: "guest, admin"}, true},
		{"no shared role", &core.CallDetails{CallerAuthRole: "guest"}, false},
		{"empty role", &core.CallDetails{}, false},
		{"no details", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := call(t, p, &core.Invocation{Details: tc.details})
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			requireAppError(t, err, core.CodeUnauthorized)
		})
	}
}

func TestCall_CustomDelimiter(t *testing.T) {
	p := MustRegister(func() error { return nil }, AllowedRoles("admin"), RoleDelimiter("|"))

	_, err := call(t, p, &core.Invocation{Details: &core.CallDetails{CallerAuthRole: "guest|admin"}})
	assert.NoError(t, err)
}

func TestCall_UnrestrictedWithoutDetails(t *testing.T) {
	p := MustRegister(func() error { return nil })

	_, err := call(t, p, &core.Invocation{})
	assert.NoError(t, err)
}

func TestCall_AuthorizationRunsFirst(t *testing.T) {
	tr := &tracker{}
	p := MustRegister(func(user userCreate, tr *tracker) error { return nil },
		Arg("user"), Inject("tr", tr.dependency()), AllowedRoles("admin"))

	_, err := call(t, p, &core.Invocation{Kwargs: map[string]any{"bogus": 1}})
	requireAppError(t, err, core.CodeUnauthorized)
	assert.Zero(t, tr.acquired)
}

func TestCall_ValidationRunsBeforeDependencies(t *testing.T) {
	tr := &tracker{}
	p := MustRegister(func(n int, tr *tracker) error { return nil }, Arg("n"), Inject("tr", tr.dependency()))

	_, err := call(t, p, &core.Invocation{Args: []any{"x"}})
	requireAppError(t, err, core.CodeInvalidParams)
	assert.Zero(t, tr.acquired)
}

// ---------------------------------------------------------------------------
// Dependency lifecycle
// ---------------------------------------------------------------------------

func TestCall_ReleasesOnSuccess(t *testing.T) {
	tr := &tracker{}
	p := MustRegister(func(tr *tracker) (int, error) { return tr.acquired, nil }, Inject("tr", tr.dependency()))

	result, err := call(t, p, &core.Invocation{})
	require.NoError(t, err)
	assert.Equal(t, 1, result)
	assert.Equal(t, []error{nil}, tr.released)
}

func TestCall_ReleasesOnHandlerError(t *testing.T) {
	tr := &tracker{}
	boom := errors.New("boom")
	p := MustRegister(func(tr *tracker) error { return boom }, Inject("tr", tr.dependency()))

	_, err := call(t, p, &core.Invocation{})
	assert.ErrorIs(t, err, boom)
	require.Len(t, tr.released, 1)
	assert.ErrorIs(t, tr.released[0], boom)
}

func TestCall_ReleasesOnPanic(t *testing.T) {
	tr := &tracker{}
	p := MustRegister(func(tr *tracker) error { panic("kaboom") }, Inject("tr", tr.dependency()))

	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = call(t, p, &core.Invocation{})
	})
	require.Len(t, tr.released, 1)
	assert.Contains(t, tr.released[0].Error(), "kaboom")
}

func TestCall_ReleasesWhenContextCancelled(t *testing.T) {
	tr := &tracker{}
	started := make(chan struct{})
	p := MustRegister(func(ctx context.Context, tr *tracker) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, Inject("tr", tr.dependency()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Handler(ctx, &core.Invocation{})
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not start")
	}
	cancel()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("call did not return after cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, tr.acquired)
	require.Len(t, tr.released, 1)
	assert.ErrorIs(t, tr.released[0], context.Canceled)
}

func TestCall_ReleaseErrorSurfacesOnSuccess(t *testing.T) {
	dep := depends.MustDepends(func() (*tracker, func(error) error, error) {
		return &tracker{}, func(error) error { return errors.New("commit failed") }, nil
	})
	p := MustRegister(func(tr *tracker) (string, error) { return "ok", nil }, Inject("tr", dep))

	result, err := call(t, p, &core.Invocation{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit failed")
	assert.Nil(t, result)
}

func TestCall_ReleaseErrorIsLoggedOnFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	dep := depends.MustDepends(func() (*tracker, func(error) error, error) {
		return &tracker{}, func(error) error { return errors.New("rollback failed") }, nil
	})
	boom := errors.New("boom")
	p := MustRegister(func(tr *tracker) error { return boom }, Inject("tr", dep), WithLogger(logger))

	_, err := call(t, p, &core.Invocation{})
	assert.Equal(t, boom, err)
	assert.Contains(t, buf.String(), "rollback failed")
}

func TestCall_FailedAcquisitionReleasesEarlierDependencies(t *testing.T) {
	tr := &tracker{}
	failing := depends.MustDepends(func() (*tracker, func(), error) {
		return nil, nil, errors.New("db down")
	})
	p := MustRegister(func(a, b *tracker) error { return nil }, Inject("a", tr.dependency()), Inject("b", failing))

	_, err := call(t, p, &core.Invocation{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	require.Len(t, tr.released, 1)
	assert.Error(t, tr.released[0])
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

func TestCall_SerializesListThroughSchema(t *testing.T) {
	rows := []userRow{
		{ID: 1, Email: "a@b.c", Password: "secret", IsActive: true},
		{ID: 2, Email: "d@e.f", Password: "secret", IsActive: false},
		{ID: 3, Email: "g@h.i", Password: "secret", IsActive: true},
	}
	p := MustRegister(func() ([]userRow, error) { return rows, nil }, ResponseSchema(userGet{}))

	result, err := call(t, p, &core.Invocation{})
	require.NoError(t, err)

	items, ok := result.([]any)
	require.True(t, ok)
	require.Len(t, items, 3)
	for i, item := range items {
		m, ok := item.(map[string]any)
		require.True(t, ok)
		assert.Len(t, m, 3)
		assert.Equal(t, rows[i].Email, m["email"])
		assert.Equal(t, rows[i].IsActive, m["is_active"])
		assert.Equal(t, float64(rows[i].ID), m["id"])
		assert.NotContains(t, m, "password")
	}
}

func TestCall_SerializeFailureIsUnknownPayload(t *testing.T) {
	tr := &tracker{}
	p := MustRegister(func(tr *tracker) (*userRow, error) { return nil, nil },
		Inject("tr", tr.dependency()), ResponseSchema(userGet{}))

	_, err := call(t, p, &core.Invocation{})
	requireAppError(t, err, core.CodeUnknownPayload)
	require.Len(t, tr.released, 1)
	assert.Error(t, tr.released[0])
}

// ---------------------------------------------------------------------------
// Call context
// ---------------------------------------------------------------------------

func TestCall_ExposesCallContext(t *testing.T) {
	var uri string
	var details *core.CallDetails
	p := MustRegister(func(ctx context.Context) error {
		uri = callctx.URIFromContext(ctx)
		details = callctx.DetailsFromContext(ctx)
		return nil
	}, URI("whoami"))

	want := &core.CallDetails{CallerAuthID: "alice"}
	_, err := call(t, p, &core.Invocation{Details: want})
	require.NoError(t, err)
	assert.Equal(t, "whoami", uri)
	assert.Same(t, want, details)
}

func TestCall_DetailsParameter(t *testing.T) {
	p := MustRegister(func(details *core.CallDetails) (string, error) {
		if details == nil {
			return "anonymous", nil
		}
		return details.CallerAuthID, nil
	}, Details("details"))

	result, err := call(t, p, &core.Invocation{Details: &core.CallDetails{CallerAuthID: "bob"}})
	require.NoError(t, err)
	assert.Equal(t, "bob", result)

	result, err = call(t, p, &core.Invocation{})
	require.NoError(t, err)
	assert.Equal(t, "anonymous", result)
}

// ---------------------------------------------------------------------------
// Describe
// ---------------------------------------------------------------------------

func TestProcedure_Describe(t *testing.T) {
	tr := &tracker{}
	p := MustRegister(func(user userCreate, tr *tracker, details *core.CallDetails) (*userRow, error) { return nil, nil },
		Arg("user"), Inject("tr", tr.dependency()), Details("details"),
		ResponseSchema(userGet{}), AllowedRoles("anonymous"), URI("get"))

	d := p.Describe()
	assert.Equal(t, "get", d.URI)
	assert.Equal(t, []string{"user"}, d.Positional)
	assert.Equal(t, []string{"tr", "details"}, d.Keyword)
	assert.Equal(t, []string{"anonymous"}, d.AllowedRoles)
	require.NotNil(t, d.Request)
	require.NotNil(t, d.Response)
	assert.Contains(t, d.Request.Properties, "password")
	assert.Contains(t, d.Response.Properties, "is_active")
	assert.Equal(t, []string{"anonymous"}, p.AllowedRoles())
}
