// Package rules parses strategy configuration documents into a typed rule
// tree and evaluates that tree against per-bar indicator snapshots.
package rules

import (
	"strings"

	"quantlab/internal/indicator"
)

// Node is one node of a boolean rule tree. Evaluation never returns an
// error: malformed or unresolvable rules evaluate to false.
type Node interface {
	Eval(snap indicator.Snapshot, price float64) bool
}

// Comparison compares a resolved indicator value against either a literal
// (Value) or another resolved indicator (CompareTo).
type Comparison struct {
	Indicator string
	Op        string
	Value     *float64
	CompareTo string
}

// And evaluates to true only if every child rule passes. It short-circuits
// on the first failing child. An empty And evaluates to false.
type And []Node

// Or evaluates to true if any child rule passes. It short-circuits on the
// first passing child. An empty Or evaluates to false.
type Or []Node

// Eval resolves both sides of the comparison and applies the operator. An
// unrecognised indicator name or operator makes the comparison false rather
// than an error.
func (c Comparison) Eval(snap indicator.Snapshot, price float64) bool {
	left, ok := Resolve(c.Indicator, snap, price)
	if !ok {
		return false
	}

	var right float64
	if c.Value != nil {
		right = *c.Value
	} else if c.CompareTo != "" {
		right, ok = Resolve(c.CompareTo, snap, price)
		if !ok {
			return false
		}
	} else {
		return false
	}

	return compare(left, c.Op, right)
}

func (a And) Eval(snap indicator.Snapshot, price float64) bool {
	if len(a) == 0 {
		return false
	}
	for _, child := range a {
		if !child.Eval(snap, price) {
			return false
		}
	}
	return true
}

func (o Or) Eval(snap indicator.Snapshot, price float64) bool {
	for _, child := range o {
		if child.Eval(snap, price) {
			return true
		}
	}
	return false
}

// Evaluate walks the tree. A nil tree evaluates to false.
func Evaluate(n Node, snap indicator.Snapshot, price float64) bool {
	if n == nil {
		return false
	}
	return n.Eval(snap, price)
}

// Resolve maps an indicator name to its value in the snapshot. The second
// return value is false for unknown names and for indicators still inside
// their warm-up period.
func Resolve(name string, snap indicator.Snapshot, price float64) (float64, bool) {
	switch strings.ToUpper(name) {
	case "PRICE":
		return price, true
	case "RSI":
		return fromPtr(snap.RSI)
	case "SMA_20":
		return fromPtr(snap.SMA20)
	case "SMA_50":
		return fromPtr(snap.SMA50)
	case "EMA_20":
		return fromPtr(snap.EMA20)
	case "MACD":
		return fromPtr(snap.MACD)
	case "MACD_SIGNAL":
		return fromPtr(snap.MACDSignal)
	default:
		return 0, false
	}
}

func fromPtr(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func compare(left float64, op string, right float64) bool {
	switch op {
	case ">":
		return left > right
	case "<":
		return left < right
	case ">=":
		return left >= right
	case "<=":
		return left <= right
	case "=", "==":
		return left == right
	default:
		return false
	}
}
