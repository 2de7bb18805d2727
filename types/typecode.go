package types

// ValueType tags the dynamic type of a runtime Value. It is also the
// vocabulary used by typed-assignment type tags (OP_SET_*_TYPED) and by
// the safe-block validation opcodes.
type ValueType int

const (
	TNil ValueType = iota
	TBool
	TNumber
	TString
	TArray
	TMap
	TFunction
	TClosure
	TNativeFn
	TClass
	TInstance
	TBoundMethod
	TModule
	TBuffer
)

func (t ValueType) String() string {
	switch t {
	case TNil:
		return "nil"
	case TBool:
		return "bool"
	case TNumber:
		return "number"
	case TString:
		return "string"
	case TArray:
		return "array"
	case TMap:
		return "map"
	case TFunction:
		return "function"
	case TClosure:
		return "closure"
	case TNativeFn:
		return "native"
	case TClass:
		return "class"
	case TInstance:
		return "instance"
	case TBoundMethod:
		return "bound_method"
	case TModule:
		return "module"
	case TBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}

// MatchesTag reports whether v satisfies the declared tag. The
// "function" tag accepts every callable variant (closure, native,
// class, bound method), since script code cannot distinguish them at
// the annotation level.
func MatchesTag(tag ValueType, v Value) bool {
	if tag == TFunction {
		switch v.Type() {
		case TFunction, TClosure, TNativeFn, TClass, TBoundMethod:
			return true
		}
		return false
	}
	return v.Type() == tag
}

// TypeTagFromName maps a declared type annotation spelling ("number",
// "string", "bool", "array", "map", "function") to the ValueType it
// validates against. Unrecognized names (including "any") return false
// and the caller should treat the binding as untyped.
func TypeTagFromName(name string) (ValueType, bool) {
	switch name {
	case "nil":
		return TNil, true
	case "bool":
		return TBool, true
	case "number":
		return TNumber, true
	case "string":
		return TString, true
	case "array":
		return TArray, true
	case "map":
		return TMap, true
	case "function":
		return TFunction, true
	default:
		return TNil, false
	}
}
