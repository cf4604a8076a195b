package docstore

import (
	"sort"
	"strings"
)

// Matches reports whether doc satisfies every filter.
func Matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc.Data[f.Field]
		if !ok {
			return false
		}
		if c, ok := Compare(v, f.Value); !ok || c != 0 {
			return false
		}
	}
	return true
}

// Apply filters, orders and limits docs the way a store would for q. Docs
// missing the order field are dropped, as Firestore does.
func Apply(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if !Matches(d, q.Filters) {
			continue
		}
		if q.OrderBy != "" {
			if _, ok := d.Data[q.OrderBy]; !ok {
				continue
			}
		}
		out = append(out, d)
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c, _ := Compare(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if q.Direction == Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Compare orders two scalars. Numbers compare numerically across kinds;
// ok is false for values of unrelated kinds.
func Compare(a, b any) (c int, ok bool) {
	a, b = Normalize(a), Normalize(b)
	if fa, isNum := number(a); isNum {
		fb, isNum := number(b)
		if !isNum {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case nil:
		if b == nil {
			return 0, true
		}
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
