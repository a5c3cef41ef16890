package template

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// maxExactInteger is the largest magnitude below which every integer is
// exactly representable as a float64.
const maxExactInteger = 1 << 53

var bracketExpression = regexp.MustCompile(`\[([^\[|\]]+)\]`)

// EvaluateArithmetic replaces every non-nested [expr] span with the result of
// evaluating expr. Integral results print as integers, other numbers with at
// most maxDigits significant digits. A failing span is replaced inline with
// "ERROR evaluating <expr>: <message>" and evaluation continues.
func EvaluateArithmetic(s string, maxDigits int) string {
	if maxDigits <= 0 {
		maxDigits = DefaultMaxDigits
	}
	return bracketExpression.ReplaceAllStringFunc(s, func(match string) string {
		code := match[1 : len(match)-1]
		result, err := evalArithmetic(code)
		if err != nil {
			return fmt.Sprintf("ERROR evaluating %s: %s", code, firstLine(err.Error()))
		}
		return formatNumber(result, maxDigits)
	})
}

func evalArithmetic(code string) (interface{}, error) {
	program, err := expr.Compile(code, expr.Env(map[string]interface{}{}), expr.DisableAllBuiltins())
	if err != nil {
		return nil, err
	}
	return expr.Run(program, map[string]interface{}{})
}

func formatNumber(v interface{}, maxDigits int) string {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return fmt.Sprint(n)
		}
		if n == math.Trunc(n) && math.Abs(n) <= maxExactInteger {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', maxDigits, 64)
	default:
		return fmt.Sprint(n)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
