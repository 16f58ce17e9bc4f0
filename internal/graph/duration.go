package graph

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
)

// ParseDuration converts a duration cell to seconds.
//
// Plain numbers are accepted directly. Anything else is evaluated as an
// arithmetic expression ("2*30", "1.5 + 0.5"); variables are not allowed.
// The result must be a finite, non-negative number.
func ParseDuration(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("duration is empty")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		v, err = evaluateDuration(s)
		if err != nil {
			return 0, err
		}
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("duration %q is not a finite number", raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("duration %q is negative", raw)
	}
	return v, nil
}

func evaluateDuration(expr string) (float64, error) {
	parsed, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return 0, fmt.Errorf("duration %q is not numeric: %v", expr, err)
	}
	if vars := parsed.Vars(); len(vars) > 0 {
		return 0, fmt.Errorf("duration %q is not numeric: unexpected name %q", expr, vars[0])
	}
	result, err := parsed.Evaluate(nil)
	if err != nil {
		return 0, fmt.Errorf("duration %q is not numeric: %v", expr, err)
	}
	v, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("duration %q is not numeric: evaluates to %T", expr, result)
	}
	return v, nil
}
