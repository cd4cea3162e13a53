package onnx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/born-ml/onnxgl/internal/tensor"
)

// AttrType identifies the kind of value an Attribute holds.
// Values follow onnx.AttributeProto.AttributeType.
type AttrType int32

// Attribute types.
const (
	AttrUndefined AttrType = 0
	AttrFloat     AttrType = 1
	AttrInt       AttrType = 2
	AttrString    AttrType = 3
	AttrTensor    AttrType = 4
	AttrFloats    AttrType = 6
	AttrInts      AttrType = 7
	AttrStrings   AttrType = 8
)

// Attribute represents a node attribute value.
type Attribute struct {
	Type    AttrType
	F       float32
	I       int64
	S       string
	T       *tensor.Tensor
	Floats  []float32
	Ints    []int64
	Strings []string
}

// Float returns a FLOAT attribute.
func Float(v float32) Attribute { return Attribute{Type: AttrFloat, F: v} }

// Int returns an INT attribute.
func Int(v int64) Attribute { return Attribute{Type: AttrInt, I: v} }

// String returns a STRING attribute.
func String(v string) Attribute { return Attribute{Type: AttrString, S: v} }

// Floats returns a FLOATS attribute.
func Floats(v ...float32) Attribute { return Attribute{Type: AttrFloats, Floats: v} }

// Ints returns an INTS attribute.
func Ints(v ...int64) Attribute { return Attribute{Type: AttrInts, Ints: v} }

// Strings returns a STRINGS attribute.
func Strings(v ...string) Attribute { return Attribute{Type: AttrStrings, Strings: v} }

// TensorAttr returns a TENSOR attribute.
func TensorAttr(t *tensor.Tensor) Attribute { return Attribute{Type: AttrTensor, T: t} }

// Attributes maps attribute names to values.
type Attributes map[string]Attribute

// Has reports whether name is set.
func (a Attributes) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Int returns an integer attribute or defaultVal.
func (a Attributes) Int(name string, defaultVal int64) int64 {
	if v, ok := a[name]; ok && v.Type == AttrInt {
		return v.I
	}
	return defaultVal
}

// Ints returns an integer array attribute or defaultVal.
func (a Attributes) Ints(name string, defaultVal []int64) []int64 {
	if v, ok := a[name]; ok && v.Type == AttrInts {
		return v.Ints
	}
	return defaultVal
}

// Float returns a float attribute or defaultVal.
func (a Attributes) Float(name string, defaultVal float32) float32 {
	if v, ok := a[name]; ok && v.Type == AttrFloat {
		return v.F
	}
	return defaultVal
}

// Floats returns a float array attribute or defaultVal.
func (a Attributes) Floats(name string, defaultVal []float32) []float32 {
	if v, ok := a[name]; ok && v.Type == AttrFloats {
		return v.Floats
	}
	return defaultVal
}

// String returns a string attribute or defaultVal.
func (a Attributes) String(name, defaultVal string) string {
	if v, ok := a[name]; ok && v.Type == AttrString {
		return v.S
	}
	return defaultVal
}

// Strings returns a string array attribute or defaultVal.
func (a Attributes) Strings(name string, defaultVal []string) []string {
	if v, ok := a[name]; ok && v.Type == AttrStrings {
		return v.Strings
	}
	return defaultVal
}

// Tensor returns a tensor attribute or nil.
func (a Attributes) Tensor(name string) *tensor.Tensor {
	if v, ok := a[name]; ok && v.Type == AttrTensor {
		return v.T
	}
	return nil
}

// Names returns the attribute names in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for n := range a {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IntsAsInts converts an INTS attribute to []int.
func (a Attributes) IntsAsInts(name string, defaultVal []int) []int {
	v, ok := a[name]
	if !ok || v.Type != AttrInts {
		return defaultVal
	}
	out := make([]int, len(v.Ints))
	for i, x := range v.Ints {
		out[i] = int(x)
	}
	return out
}

// ParseAttribute parses a "name=value" pair. Values containing commas become
// INTS (or FLOATS when any element has a decimal point); a single number
// becomes INT or FLOAT; anything else is a STRING.
func ParseAttribute(text string) (string, Attribute, error) {
	name, value, ok := cutAttr(text)
	if !ok {
		return "", Attribute{}, fmt.Errorf("attribute %q: expected name=value", text)
	}
	return name, parseAttrValue(value), nil
}

func cutAttr(text string) (string, string, bool) {
	name, value, ok := strings.Cut(text, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(value), true
}

func parseAttrValue(value string) Attribute {
	trimmed := strings.Trim(value, "[]")
	if strings.Contains(trimmed, ",") || strings.HasPrefix(value, "[") {
		parts := strings.Split(trimmed, ",")
		if trimmed == "" {
			parts = nil
		}
		ints := make([]int64, 0, len(parts))
		floats := make([]float32, 0, len(parts))
		isFloat := false
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if i, err := strconv.ParseInt(p, 10, 64); err == nil {
				ints = append(ints, i)
				floats = append(floats, float32(i))
				continue
			}
			f, err := strconv.ParseFloat(p, 32)
			if err != nil {
				return String(value)
			}
			isFloat = true
			floats = append(floats, float32(f))
		}
		if isFloat {
			return Floats(floats...)
		}
		return Ints(ints...)
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(value, 32); err == nil {
		return Float(float32(f))
	}
	return String(value)
}
