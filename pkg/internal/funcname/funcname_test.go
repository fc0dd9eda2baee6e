package funcname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type accounts struct{}

func (a *accounts) create() {}

func (a accounts) ListUsers() {}

func echo() {}

func TestOf(t *testing.T) {
	a := &accounts{}

	assert.Equal(t, "create", Of(a.create))
	assert.Equal(t, "ListUsers", Of(a.ListUsers))
	assert.Equal(t, "echo", Of(echo))
	assert.Equal(t, "TestOf", Of(func() {}))
	assert.Equal(t, "", Of(42))

	var nilFn func()
	assert.Equal(t, "", Of(nilFn))
}

func TestShort(t *testing.T) {
	tests := map[string]string{
		"github.com/x/y.(*Accounts).create-fm": "create",
		"github.com/x/y.Accounts.List-fm":      "List",
		"main.echo":                            "echo",
		"github.com/x/y.TestThing.func1":       "TestThing",
		"github.com/x/y.TestThing.func1.2":     "TestThing",
	}
	for in, want := range tests {
		assert.Equal(t, want, short(in), in)
	}
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"create":    "create",
		"Create":    "create",
		"ListUsers": "list_users",
		"GetByID":   "get_by_id",
		"HTTPEcho":  "http_echo",
		"echo2Fast": "echo2_fast",
		"list_all":  "list_all",
	}
	for in, want := range tests {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}
