package tracker

import (
	"reflect"
	"sort"

	"github.com/goccy/go-json"
)

// skippedFields are stamped by the tracker itself and never count as changes.
var skippedFields = map[string]bool{
	"received_at": true,
	"changes":     true,
}

// Change is the before/after pair of one field.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff compares a new payload against the previous version. Only fields
// present in next are considered. Missing, null and "" values are equal.
func Diff(prev, next map[string]any) map[string]Change {
	out := make(map[string]Change)
	for key, newValue := range next {
		if skippedFields[key] {
			continue
		}
		oldValue := prev[key]
		if isBlank(oldValue) && isBlank(newValue) {
			continue
		}
		if !valuesEqual(oldValue, newValue) {
			out[key] = Change{Old: oldValue, New: newValue}
		}
	}
	return out
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	la, aList := a.([]any)
	lb, bList := b.([]any)
	if aList && bList {
		return unorderedEqual(la, lb)
	}
	return reflect.DeepEqual(a, b)
}

// unorderedEqual compares lists as multisets of their canonical JSON form.
func unorderedEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	ka, errA := canonicalKeys(a)
	kb, errB := canonicalKeys(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

func canonicalKeys(items []any) ([]string, error) {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		// Map keys are emitted sorted, so equal objects encode identically.
		b, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		keys = append(keys, string(b))
	}
	sort.Strings(keys)
	return keys, nil
}
