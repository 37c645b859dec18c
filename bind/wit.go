package bind

import (
	"reflect"
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/passagelabs/passage/errors"
	"github.com/passagelabs/passage/schema"
)

// ParseSignatures extracts method declarations from WIT-style signature
// text. Pattern: [export] name: func(params) -> result;
//
// It covers the scalar-and-string subset of WIT. Records, arrays and
// direction annotations have no WIT spelling here; declare those methods
// programmatically.
func ParseSignatures(witText string) ([]Method, error) {
	funcPattern := regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

	matches := funcPattern.FindAllStringSubmatch(witText, -1)
	methods := make([]Method, 0, len(matches))
	for _, match := range matches {
		name := match[1]
		paramsStr := strings.TrimSpace(match[2])
		resultStr := ""
		if len(match) > 3 {
			resultStr = strings.TrimSpace(match[3])
		}

		m := Method{Name: name}

		if paramsStr != "" {
			for _, p := range splitParams(paramsStr) {
				pname := ""
				typStr := p
				if idx := strings.LastIndex(p, ":"); idx != -1 {
					pname = strings.TrimSpace(p[:idx])
					typStr = strings.TrimSpace(p[idx+1:])
				}
				st, goType, err := mapWitType(typStr)
				if err != nil {
					return nil, err
				}
				m.Params = append(m.Params, Param{Name: pname, Type: st, Go: goType})
			}
		}

		if resultStr != "" && resultStr != "()" {
			st, goType, err := mapWitType(resultStr)
			if err != nil {
				return nil, err
			}
			m.Returns = &Result{Type: st, Go: goType}
		}

		methods = append(methods, m)
	}

	if len(methods) == 0 {
		return nil, errors.InvalidInput(errors.PhaseBind, "no functions found in signature text")
	}
	return methods, nil
}

// splitParams splits a parameter list, handling nested parens.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}

	return result
}

// mapWitType translates one WIT type name into the declared schema shape
// and the managed type callers pass. u32 is the address type on this
// substrate, so it maps to an opaque handle.
func mapWitType(s string) (schema.Type, reflect.Type, error) {
	t, err := wit.ParseType(strings.TrimSpace(s))
	if err != nil {
		return nil, nil, errors.Wrap(errors.PhaseBind, errors.KindInvalidData, err, "parse type "+s)
	}

	switch t.(type) {
	case wit.Bool:
		return schema.Bool{}, reflect.TypeOf(false), nil
	case wit.S8:
		return schema.I8{}, reflect.TypeOf(int8(0)), nil
	case wit.S16:
		return schema.I16{}, reflect.TypeOf(int16(0)), nil
	case wit.S32:
		return schema.I32{}, reflect.TypeOf(int32(0)), nil
	case wit.S64:
		return schema.I64{}, reflect.TypeOf(int64(0)), nil
	case wit.F32:
		return schema.F32{}, reflect.TypeOf(float32(0)), nil
	case wit.F64:
		return schema.F64{}, reflect.TypeOf(float64(0)), nil
	case wit.U8:
		return schema.Byte{}, reflect.TypeOf(uint8(0)), nil
	case wit.U32:
		return schema.Pointer{}, handleType, nil
	case wit.String:
		return schema.String{}, reflect.TypeOf(""), nil
	default:
		return nil, nil, errors.UnsupportedLayout(errors.PhaseBind, nil,
			"unsupported signature type "+s)
	}
}
