package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clj-embed/cloj/internal/value"
)

func Test_EvalString_Arithmetic(t *testing.T) {
	it := New()
	v, err := it.EvalString("(+ 1 2 3)")
	require.NoError(t, err)
	assert.Equal(t, value.Int(6), v)
}

func Test_EvalString_DefAndClosure(t *testing.T) {
	it := New()
	_, err := it.EvalString(`(def make-adder (fn [n] (fn [x] (+ x n))))`)
	require.NoError(t, err)
	v, err := it.EvalString(`((make-adder 10) 5)`)
	require.NoError(t, err)
	assert.Equal(t, value.Int(15), v)
}

func Test_EvalString_LetAndIf(t *testing.T) {
	it := New()
	v, err := it.EvalString(`(let [x 5 y (* x 2)] (if (> y 5) "big" "small"))`)
	require.NoError(t, err)
	assert.Equal(t, value.String("big"), v)
}

func Test_EvalString_LoopRecur(t *testing.T) {
	it := New()
	v, err := it.EvalString(`(loop [n 5 acc 1] (if (= n 0) acc (recur (- n 1) (* acc n))))`)
	require.NoError(t, err)
	assert.Equal(t, value.Int(120), v)
}

func Test_EvalString_NamedFnSelfRecursion(t *testing.T) {
	it := New()
	v, err := it.EvalString(`((fn fact [n] (if (= n 0) 1 (* n (fact (- n 1))))) 5)`)
	require.NoError(t, err)
	assert.Equal(t, value.Int(120), v)
}

func Test_EvalString_TryCatch(t *testing.T) {
	it := New()
	v, err := it.EvalString(`(try (/ 1 0) (catch Exception e (str "caught")))`)
	require.NoError(t, err)
	assert.Equal(t, value.String("caught"), v)
}

func Test_EvalString_TryCatchDivisionByZeroType(t *testing.T) {
	it := New()
	v, err := it.EvalString(`(try (/ 1 0) (catch Exception e (:type e)))`)
	require.NoError(t, err)
	kw, ok := v.(*value.Keyword)
	require.True(t, ok)
	assert.Equal(t, "division-by-zero", kw.Name)
}

func Test_EvalString_TakeIterate(t *testing.T) {
	it := New()
	v, err := it.EvalString(`(take 5 (iterate inc 0))`)
	require.NoError(t, err)
	lst, ok := v.(*value.List)
	require.True(t, ok)
	assert.Equal(t, "(0 1 2 3 4)", lst.String())
}

func Test_EvalString_ThrowCatchUserValue(t *testing.T) {
	it := New()
	v, err := it.EvalString(`(try (throw "boom") (catch Exception e e))`)
	require.NoError(t, err)
	assert.Equal(t, value.String("boom"), v)
}

func Test_EvalString_DefmultiDefmethod(t *testing.T) {
	it := New()
	_, err := it.EvalString(`(defmulti area :shape)`)
	require.NoError(t, err)
	_, err = it.EvalString(`(defmethod area :square [s] (* (:side s) (:side s)))`)
	require.NoError(t, err)
	v, err := it.EvalString(`(area {:shape :square :side 4})`)
	require.NoError(t, err)
	assert.Equal(t, value.Int(16), v)
}

func Test_EvalString_DefmultiDefaultMethod(t *testing.T) {
	it := New()
	_, err := it.EvalString(`(do (defmulti f (fn [x] (:t x))) (defmethod f :a [x] 1) (defmethod f :default [x] 99))`)
	require.NoError(t, err)
	v, err := it.EvalString(`(f {:t :z})`)
	require.NoError(t, err)
	assert.Equal(t, value.Int(99), v)
}

func Test_EvalString_DefprotocolExtendType(t *testing.T) {
	it := New()
	v, err := it.EvalString(`(do
		(defprotocol IFoo (foo [this]))
		(extend-type String IFoo (foo [this] (str "foo:" this)))
		(foo "bar"))`)
	require.NoError(t, err)
	assert.Equal(t, value.String("foo:bar"), v)
}

func Test_EvalString_ReFind(t *testing.T) {
	it := New()
	v, err := it.EvalString(`(re-find #"(\d+)-(\d+)" "12-34")`)
	require.NoError(t, err)
	vec, ok := v.(*value.Vector)
	require.True(t, ok)
	assert.Equal(t, 3, vec.Count())
	first, _ := vec.Nth(0)
	second, _ := vec.Nth(1)
	third, _ := vec.Nth(2)
	assert.Equal(t, value.String("12-34"), first)
	assert.Equal(t, value.String("12"), second)
	assert.Equal(t, value.String("34"), third)
}

func Test_EvalString_ParseErrorDoesNotPanic(t *testing.T) {
	it := New()
	_, err := it.EvalString(`(+ 1 `)
	assert.Error(t, err)
}

func Test_EvalString_UndefinedSymbol(t *testing.T) {
	it := New()
	_, err := it.EvalString(`no-such-name`)
	assert.Error(t, err)
}
