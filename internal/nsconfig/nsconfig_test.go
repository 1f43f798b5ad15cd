package nsconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/nsconfig"
)

func Test_Parse_And_Apply(t *testing.T) {
	doc := []byte(`
namespaces:
  - name: myapp.core
  - name: myapp.util
    aliases:
      core: myapp.core
features:
  - go
  - repl
current_namespace: myapp.core
`)
	cfg, err := nsconfig.Parse(doc)
	require.NoError(t, err)
	assert.Len(t, cfg.Namespaces, 2)
	assert.ElementsMatch(t, []string{"go", "repl"}, cfg.Features)

	env := namespace.NewEnv()
	require.NoError(t, cfg.Apply(env))

	util, ok := env.Namespace("myapp.util")
	require.True(t, ok)
	target, ok := util.ResolveAlias("core")
	require.True(t, ok)
	assert.Equal(t, "myapp.core", target.Name)

	assert.True(t, env.Has("go"))
	assert.True(t, env.Has("repl"))
	assert.False(t, env.Has("unknown"))

	assert.Equal(t, "myapp.core", env.CurrentNamespace().Name)
}

func Test_Apply_UndeclaredAliasTargetErrors(t *testing.T) {
	cfg := &nsconfig.Config{
		Namespaces: []nsconfig.NamespaceConfig{
			{Name: "a", Aliases: map[string]string{"b": "nonexistent"}},
		},
	}
	env := namespace.NewEnv()
	err := cfg.Apply(env)
	assert.Error(t, err)
}
