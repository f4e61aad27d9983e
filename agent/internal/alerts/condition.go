package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/endomorphosis/ipfs-kit-py-sub023/agent/internal/orchestrator"
)

// condition is a parsed rule condition.
type condition struct {
	field string
	op    string
	str   string
	num   float64
}

var numericFields = map[string]bool{
	"score":                true,
	"latency_ms":           true,
	"uptime_pct":           true,
	"cert_days_left":       true,
	"consecutive_failures": true,
}

// parseCondition parses "field operator value".
func parseCondition(s string) (condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want \"field operator value\"", s)
	}
	c := condition{field: parts[0], op: parts[1], str: parts[2]}

	switch {
	case c.field == "health" || c.field == "status":
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("condition %q: %s supports == and != only", s, c.field)
		}
	case numericFields[c.field]:
		switch c.op {
		case "<", "<=", ">", ">=", "==", "!=":
		default:
			return condition{}, fmt.Errorf("condition %q: unknown operator %q", s, c.op)
		}
		v, err := strconv.ParseFloat(c.str, 64)
		if err != nil {
			return condition{}, fmt.Errorf("condition %q: value is not a number", s)
		}
		c.num = v
	default:
		return condition{}, fmt.Errorf("condition %q: unknown field %q", s, c.field)
	}
	return c, nil
}

// eval reports whether c holds for st and returns the observed value.
func (c condition) eval(st orchestrator.BackendState, uptime float64) (bool, float64) {
	switch c.field {
	case "health":
		return compareString(string(st.Health), c.op, c.str), 0
	case "status":
		return compareString(string(st.Status), c.op, c.str), 0
	}

	var v float64
	switch c.field {
	case "score":
		if st.Score == nil {
			return false, 0
		}
		v = *st.Score
	case "latency_ms":
		v = st.LatencyMS
	case "uptime_pct":
		v = uptime
	case "cert_days_left":
		d, ok := st.Metrics["cert_days_left"]
		if !ok {
			return false, 0
		}
		v = d
	case "consecutive_failures":
		v = float64(st.Remediation.ConsecutiveFailures)
	}
	return compareNum(v, c.op, c.num), v
}

func compareString(got, op, want string) bool {
	if op == "!=" {
		return got != want
	}
	return got == want
}

func compareNum(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case "<":
		return v < threshold
	case ">=":
		return v >= threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	}
	return false
}
