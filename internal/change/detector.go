// Package change implements the deep-diff ChangeDetector that compares
// successive MonitoringSample extractions and flags coffee restocks.
package change

import (
	"fmt"
	"sort"

	"github.com/watchloom/pagewatch/internal/schemas"
)

// Detector recursively diffs two extracted-data maps into a dotted-path
// changed-field list and applies the restock heuristic on top.
type Detector struct {
	restockField string
}

// NewDetector builds a Detector configured with the field name that drives
// the restock heuristic (spec default "roastingDate").
func NewDetector(restockField string) *Detector {
	if restockField == "" {
		restockField = "roastingDate"
	}
	return &Detector{restockField: restockField}
}

// HasChanged performs the recursive structural diff of prev vs curr and
// layers the restock heuristic on top. A nil prev means "no prior sample":
// callers distinguish first-observation via MonitoringStore, not here.
func (d *Detector) HasChanged(prev, curr map[string]interface{}) schemas.ChangeVerdict {
	fields := diffPaths("", toInterfaceMap(prev), toInterfaceMap(curr))
	sort.Strings(fields)

	verdict := schemas.ChangeVerdict{
		Changed:       len(fields) > 0,
		ChangedFields: fields,
	}
	verdict.IsRestock = d.isRestock(fields, prev, curr)
	if verdict.Changed {
		verdict.ChangeDetails = d.getChangeDetails(prev, curr)
	}
	return verdict
}

func toInterfaceMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// diffPaths recursively compares two values already known to live at the
// same dotted path, appending scalar/array mismatches to the result.
func diffPaths(prefix string, prev, curr map[string]interface{}) []string {
	var fields []string
	seen := make(map[string]struct{})

	for key, prevVal := range prev {
		seen[key] = struct{}{}
		path := joinPath(prefix, key)
		currVal, ok := curr[key]
		if !ok {
			fields = append(fields, path)
			continue
		}
		fields = append(fields, diffValue(path, prevVal, currVal)...)
	}
	for key, currVal := range curr {
		if _, ok := seen[key]; ok {
			continue
		}
		path := joinPath(prefix, key)
		if _, existedInPrev := prev[key]; !existedInPrev {
			fields = append(fields, path)
			continue
		}
		fields = append(fields, diffValue(path, prev[key], currVal)...)
	}
	return fields
}

// diffValue compares one (prev, curr) pair already resolved at path,
// recursing into nested objects and treating arrays as opaque values.
func diffValue(path string, prev, curr interface{}) []string {
	prevMap, prevIsMap := prev.(map[string]interface{})
	currMap, currIsMap := curr.(map[string]interface{})
	if prevIsMap && currIsMap {
		return diffPaths(path, prevMap, currMap)
	}
	if prevIsMap != currIsMap {
		return []string{path}
	}
	if !valuesEqual(prev, curr) {
		return []string{path}
	}
	return nil
}

// valuesEqual compares scalars and arrays by value. Arrays (including
// arrays of objects) are compared as a whole rather than element-by-element
// per spec §4.8 — any difference anywhere inside the array marks the path.
func valuesEqual(a, b interface{}) bool {
	aSlice, aIsSlice := a.([]interface{})
	bSlice, bIsSlice := b.([]interface{})
	if aIsSlice && bIsSlice {
		if len(aSlice) != len(bSlice) {
			return false
		}
		for i := range aSlice {
			if !deepValueEqual(aSlice[i], bSlice[i]) {
				return false
			}
		}
		return true
	}
	if aIsSlice != bIsSlice {
		return false
	}
	return deepValueEqual(a, b)
}

func deepValueEqual(a, b interface{}) bool {
	aMap, aIsMap := a.(map[string]interface{})
	bMap, bIsMap := b.(map[string]interface{})
	if aIsMap && bIsMap {
		return len(diffPaths("", aMap, bMap)) == 0
	}
	if aIsMap != bIsMap {
		return false
	}
	aSlice, aIsSlice := a.([]interface{})
	bSlice, bIsSlice := b.([]interface{})
	if aIsSlice && bIsSlice {
		return valuesEqual(aSlice, bSlice)
	}
	if aIsSlice != bIsSlice {
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// isRestock applies the spec-fixed restock heuristic: the configured field
// must be among the changed paths at the top level, and its new value must
// be lexicographically later than its old value (YYYY-MM-DD sorts correctly
// as a string).
func (d *Detector) isRestock(changedFields []string, prev, curr map[string]interface{}) bool {
	found := false
	for _, f := range changedFields {
		if f == d.restockField {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	prevVal, prevOK := prev[d.restockField].(string)
	currVal, currOK := curr[d.restockField].(string)
	if !prevOK || !currOK {
		return false
	}
	return prevVal < currVal
}

// getChangeDetails classifies every changed top-level key as added, removed,
// or modified, for the optional change_detections.change_details column.
func (d *Detector) getChangeDetails(prev, curr map[string]interface{}) map[string]interface{} {
	added := map[string]interface{}{}
	removed := map[string]interface{}{}
	modified := map[string]interface{}{}

	for key, currVal := range curr {
		prevVal, existed := prev[key]
		if !existed {
			added[key] = currVal
			continue
		}
		if len(diffValue(key, prevVal, currVal)) > 0 {
			modified[key] = map[string]interface{}{"from": prevVal, "to": currVal}
		}
	}
	for key, prevVal := range prev {
		if _, stillPresent := curr[key]; !stillPresent {
			removed[key] = prevVal
		}
	}

	details := map[string]interface{}{}
	if len(added) > 0 {
		details["added"] = added
	}
	if len(removed) > 0 {
		details["removed"] = removed
	}
	if len(modified) > 0 {
		details["modified"] = modified
	}
	return details
}
