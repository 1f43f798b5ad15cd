package treewalk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clj-embed/cloj/internal/alloc"
	"github.com/clj-embed/cloj/internal/analyzer"
	"github.com/clj-embed/cloj/internal/namespace"
	"github.com/clj-embed/cloj/internal/reader"
	"github.com/clj-embed/cloj/internal/stdlib"
	"github.com/clj-embed/cloj/internal/treewalk"
	"github.com/clj-embed/cloj/internal/value"
)

// evalOne threads one source string through Read -> Analyze -> Eval
// against a freshly bootstrapped Env, for table-driven node-level tests
// that don't need the full pkg/embed host surface.
func evalOne(t *testing.T, src string) (value.Value, error) {
	t.Helper()
	env := namespace.NewEnv()
	al := alloc.New()
	it := treewalk.New(env, al)
	coreNs, _ := env.Namespace("cloj.core")
	stdlib.Install(coreNs, it)
	userNs, _ := env.Namespace("user")
	for name, v := range coreNs.Vars() {
		userNs.AddRefer(name, v)
	}
	a := analyzer.New(env, it)

	r := reader.New("<test>", src, reader.WithFeatures(env), reader.WithDataReaders(env))
	forms, err := r.ReadAll()
	require.NoError(t, err)

	var result value.Value
	for _, f := range forms {
		n, err := a.Analyze(f)
		if err != nil {
			return nil, err
		}
		result, err = it.Eval(n)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func Test_Treewalk_Arithmetic(t *testing.T) {
	v, err := evalOne(t, "(* 2 (+ 3 4))")
	require.NoError(t, err)
	assert.Equal(t, value.Int(14), v)
}

func Test_Treewalk_DestructuringLet(t *testing.T) {
	v, err := evalOne(t, "(let [[a b & more] [1 2 3 4]] (+ a b (count more)))")
	require.NoError(t, err)
	assert.Equal(t, value.Int(5), v)
}

func Test_Treewalk_MapDestructuring(t *testing.T) {
	v, err := evalOne(t, `(let [{:keys [x y]} {:x 1 :y 2}] (+ x y))`)
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), v)
}

func Test_Treewalk_VariadicFn(t *testing.T) {
	v, err := evalOne(t, `((fn [a & rest] (+ a (count rest))) 1 2 3 4)`)
	require.NoError(t, err)
	assert.Equal(t, value.Int(4), v)
}

func Test_Treewalk_NestedLazyCons(t *testing.T) {
	v, err := evalOne(t, `(let [s (lazy-seq (cons 1 (lazy-seq (cons 2 (lazy-seq (cons 3 nil))))))]
		(+ (first s) (first (rest s)) (first (rest (rest s)))))`)
	require.NoError(t, err)
	assert.Equal(t, value.Int(6), v)
}

func Test_Treewalk_TakeIterate(t *testing.T) {
	v, err := evalOne(t, `(take 5 (iterate inc 0))`)
	require.NoError(t, err)
	assert.Equal(t, "(0 1 2 3 4)", v.String())
}

func Test_Treewalk_MultiArityFn(t *testing.T) {
	v, err := evalOne(t, `((fn ([a] a) ([a b] (+ a b))) 5 6)`)
	require.NoError(t, err)
	assert.Equal(t, value.Int(11), v)
}

func Test_Treewalk_Letfn(t *testing.T) {
	v, err := evalOne(t, `(letfn [(even? [n] (if (= n 0) true (odd? (- n 1))))
	                      (odd? [n] (if (= n 0) false (even? (- n 1))))]
	                  (even? 10))`)
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), v)
}

func Test_Treewalk_TryFinallyRunsOnSuccess(t *testing.T) {
	v, err := evalOne(t, `(do (def log (atom [])) (try 42 (finally (swap! log conj :ran))) @log)`)
	require.NoError(t, err)
	vec, ok := v.(*value.Vector)
	require.True(t, ok)
	assert.Equal(t, 1, vec.Count())
}

func Test_Treewalk_AtomSwapDeref(t *testing.T) {
	v, err := evalOne(t, `(let [a (atom 10)] (swap! a + 5) @a)`)
	require.NoError(t, err)
	assert.Equal(t, value.Int(15), v)
}

func Test_Treewalk_UndefinedLocalIsError(t *testing.T) {
	_, err := evalOne(t, `(fn [x] y)`)
	assert.Error(t, err)
}
