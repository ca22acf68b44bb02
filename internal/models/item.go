// Package models defines the item shapes read from the reference library.
//
// Items stay loosely typed: bibliographic records carry arbitrary fields, so
// every variant is a named map. The variant is decided once by Classify and
// carried by the Go type afterwards.
package models

import (
	"encoding/json"
	"math"
	"strconv"
)

// Reserved item types that never classify as regular items.
const (
	ItemTypeAttachment = "attachment"
	ItemTypeNote       = "note"
	ItemTypeAnnotation = "annotation"
)

// Item is one of RegularItem, AnnotationItem or Unknown.
type Item interface {
	isItem()
}

// RegularItem is a bibliographic record.
type RegularItem map[string]any

// AnnotationItem is an annotation made on a PDF attachment.
type AnnotationItem map[string]any

// Unknown is a value that matched neither item shape.
type Unknown map[string]any

func (RegularItem) isItem()    {}
func (AnnotationItem) isItem() {}
func (Unknown) isItem()        {}

// Classify decides the item variant from the field shape of m.
// A regular item's nested "annotations" sequence is classified too.
func Classify(m map[string]any) Item {
	if m == nil {
		return Unknown{}
	}
	itemType, _ := m["itemType"].(string)
	if _, hasKey := m["key"].(string); hasKey && !isNonRegularType(itemType) {
		item := RegularItem(m)
		if raw, ok := m["annotations"]; ok {
			if annots, ok := classifyAnnotations(raw); ok {
				item = item.WithAnnotations(annots)
			}
		}
		return item
	}
	if itemType == ItemTypeAnnotation {
		if _, ok := m["parentItem"].(string); ok {
			a := AnnotationItem(m)
			if a.Key() != "" {
				return a
			}
			if _, ok := a.PageIndex(); ok {
				return a
			}
		}
	}
	return Unknown(m)
}

// AsItem returns v as an Item, classifying raw maps. It returns nil for
// values that are neither.
func AsItem(v any) Item {
	switch it := v.(type) {
	case RegularItem:
		return it
	case AnnotationItem:
		return it
	case Unknown:
		return it
	case map[string]any:
		return Classify(it)
	default:
		return nil
	}
}

// ClassifyAnnotations classifies each element of a decoded JSON sequence.
// It reports false when any element is not an annotation.
func ClassifyAnnotations(raw []any) ([]AnnotationItem, bool) {
	return classifyAnnotations(raw)
}

func classifyAnnotations(raw any) ([]AnnotationItem, bool) {
	switch v := raw.(type) {
	case []AnnotationItem:
		return v, true
	case []any:
		out := make([]AnnotationItem, 0, len(v))
		for _, el := range v {
			a, ok := AsItem(el).(AnnotationItem)
			if !ok {
				return nil, false
			}
			out = append(out, a)
		}
		return out, true
	default:
		return nil, false
	}
}

func isNonRegularType(t string) bool {
	switch t {
	case ItemTypeAttachment, ItemTypeNote, ItemTypeAnnotation:
		return true
	}
	return false
}

// Key returns the item key.
func (r RegularItem) Key() string { return stringField(r, "key") }

// GroupID returns the group library id when the item lives in a group.
func (r RegularItem) GroupID() (int, bool) { return intField(r, "groupID") }

// KeyGroupID returns the composite key-group identifier.
func (r RegularItem) KeyGroupID() string { return KeyGroupID(r.Key(), r["groupID"]) }

// WithAnnotations returns a copy of r carrying annots under "annotations".
func (r RegularItem) WithAnnotations(annots []AnnotationItem) RegularItem {
	out := make(RegularItem, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out["annotations"] = annots
	return out
}

// Annotations returns the annotations attached by WithAnnotations.
func (r RegularItem) Annotations() []AnnotationItem {
	annots, _ := r["annotations"].([]AnnotationItem)
	return annots
}

// Key returns the annotation key, empty when unset.
func (a AnnotationItem) Key() string { return stringField(a, "key") }

// ParentItem returns the key of the attachment carrying the annotation.
func (a AnnotationItem) ParentItem() string { return stringField(a, "parentItem") }

// GroupID returns the group library id when the annotation lives in a group.
func (a AnnotationItem) GroupID() (int, bool) { return intField(a, "groupID") }

// KeyGroupID returns the composite key-group identifier.
func (a AnnotationItem) KeyGroupID() string { return KeyGroupID(a.Key(), a["groupID"]) }

// PageIndex returns annotationPosition.pageIndex formatted as written when
// it is numeric.
func (a AnnotationItem) PageIndex() (string, bool) {
	if pos, ok := a["annotationPosition"].(map[string]any); ok {
		return Number(pos["pageIndex"])
	}
	return "", false
}

// KeyGroupID composes an item key with an optional numeric group id.
func KeyGroupID(key string, groupID any) string {
	if g, ok := Number(groupID); ok {
		return key + "g" + g
	}
	return key
}

// Number formats v when it holds a number.
func Number(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", false
		}
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case json.Number:
		if _, err := n.Float64(); err != nil {
			return "", false
		}
		return n.String(), true
	}
	return "", false
}

func stringField(m map[string]any, name string) string {
	s, _ := m[name].(string)
	return s
}

func intField(m map[string]any, name string) (int, bool) {
	switch n := m[name].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}
