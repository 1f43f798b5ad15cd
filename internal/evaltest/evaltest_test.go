package evaltest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clj-embed/cloj/internal/evaltest"
	"github.com/clj-embed/cloj/internal/value"
	"github.com/clj-embed/cloj/pkg/embed"
)

// displayString renders v the way these scenarios' expected.txt files
// were authored: value.Value.String() as-is, since this dialect's
// String() is a display form rather than a quoting pr-str (plain
// string/char contents, no surrounding quotes).
func displayString(v interface{}) string {
	if v == nil {
		return "nil"
	}
	vv, ok := v.(value.Value)
	if !ok {
		return ""
	}
	return vv.String()
}

func Test_Scenarios_Treewalk(t *testing.T) {
	scenarios, err := evaltest.Load("testdata/scenarios.txtar")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, sc := range scenarios {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			it := embed.New()
			v, err := it.EvalString(sc.Source)
			require.NoError(t, err)
			require.Equal(t, sc.Expected, displayString(v))
		})
	}
}

// Test_Scenarios_VM runs the same scenario table through the bytecode
// VM backend, per spec.md §4.5/§6.3: the VM is a mandatory execution
// backend, not an alternative one, so every scenario the tree walker
// passes must also pass here.
func Test_Scenarios_VM(t *testing.T) {
	scenarios, err := evaltest.Load("testdata/scenarios.txtar")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, sc := range scenarios {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			it := embed.NewVM()
			v, err := it.EvalString(sc.Source)
			require.NoError(t, err)
			require.Equal(t, sc.Expected, displayString(v))
		})
	}
}

// Test_Scenarios_BackendsAgree is Invariant 2 made explicit (spec.md
// §8.1): run each scenario through both backends from a fresh session
// and require their printed results match each other, not just each
// backend's own expected.txt independently.
func Test_Scenarios_BackendsAgree(t *testing.T) {
	scenarios, err := evaltest.Load("testdata/scenarios.txtar")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, sc := range scenarios {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			tw := embed.New()
			twVal, twErr := tw.EvalString(sc.Source)
			require.NoError(t, twErr)

			vmIt := embed.NewVM()
			vmVal, vmErr := vmIt.EvalString(sc.Source)
			require.NoError(t, vmErr)

			require.Equal(t, displayString(twVal), displayString(vmVal),
				"tree-walker and VM diverged on scenario %s", sc.Name)
		})
	}
}
