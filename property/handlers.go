package property

import (
	"fmt"
	"strconv"

	"github.com/nexxt-run/nexxt/nxerrors"
)

// IntHandler validates integer properties, clamping to [Min, Max] when
// either bound is non-zero-valued (use math.MinInt64/MaxInt64 for an
// unbounded side).
type IntHandler struct {
	Min, Max int64
}

func (h IntHandler) FromConfig(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "not an integer: %s", v)
		}
		return n, nil
	default:
		return nil, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "unexpected type %T for int property", raw)
	}
}

func (h IntHandler) ToConfig(value interface{}) interface{} { return value }
func (h IntHandler) ToViewValue(value interface{}) string    { return fmt.Sprint(value) }

func (h IntHandler) Validate(value interface{}) (interface{}, error) {
	n, ok := value.(int64)
	if !ok {
		if f, isFloat := value.(float64); isFloat {
			n = int64(f)
		} else if i, isInt := value.(int); isInt {
			n = int64(i)
		} else {
			return nil, nxerrors.Wrapf(nxerrors.ErrPropertyUnknownType, "expected int, got %T", value)
		}
	}
	if h.Min != 0 || h.Max != 0 {
		if n < h.Min {
			n = h.Min
		}
		if n > h.Max {
			n = h.Max
		}
	}
	return n, nil
}

// FloatHandler validates float properties, clamping to [Min, Max] when
// either bound is non-zero.
type FloatHandler struct {
	Min, Max float64
}

func (h FloatHandler) FromConfig(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "not a float: %s", v)
		}
		return f, nil
	default:
		return nil, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "unexpected type %T for float property", raw)
	}
}

func (h FloatHandler) ToConfig(value interface{}) interface{} { return value }
func (h FloatHandler) ToViewValue(value interface{}) string {
	return strconv.FormatFloat(value.(float64), 'g', -1, 64)
}

func (h FloatHandler) Validate(value interface{}) (interface{}, error) {
	f, ok := value.(float64)
	if !ok {
		return nil, nxerrors.Wrapf(nxerrors.ErrPropertyUnknownType, "expected float64, got %T", value)
	}
	if h.Min != 0 || h.Max != 0 {
		if f < h.Min {
			f = h.Min
		}
		if f > h.Max {
			f = h.Max
		}
	}
	return f, nil
}

// StringHandler validates string properties, optionally restricting the
// value to a fixed Enum set.
type StringHandler struct {
	Enum []string
}

func (h StringHandler) FromConfig(raw interface{}) (interface{}, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "unexpected type %T for string property", raw)
	}
	return s, nil
}

func (h StringHandler) ToConfig(value interface{}) interface{} { return value }
func (h StringHandler) ToViewValue(value interface{}) string   { return value.(string) }

func (h StringHandler) Validate(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, nxerrors.Wrapf(nxerrors.ErrPropertyUnknownType, "expected string, got %T", value)
	}
	if len(h.Enum) == 0 {
		return s, nil
	}
	for _, e := range h.Enum {
		if e == s {
			return s, nil
		}
	}
	return nil, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "%q not in enum %v", s, h.Enum)
}

// BoolHandler validates boolean properties.
type BoolHandler struct{}

func (h BoolHandler) FromConfig(raw interface{}) (interface{}, error) {
	b, ok := raw.(bool)
	if !ok {
		return nil, nxerrors.Wrapf(nxerrors.ErrPropertyParse, "unexpected type %T for bool property", raw)
	}
	return b, nil
}

func (h BoolHandler) ToConfig(value interface{}) interface{} { return value }
func (h BoolHandler) ToViewValue(value interface{}) string   { return fmt.Sprint(value) }

func (h BoolHandler) Validate(value interface{}) (interface{}, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, nxerrors.Wrapf(nxerrors.ErrPropertyUnknownType, "expected bool, got %T", value)
	}
	return b, nil
}
