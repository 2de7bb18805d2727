package types

import (
	"strings"
	"unicode/utf8"
)

// StringMethodFn is one string-method handler: receiver plus evaluated
// arguments in, Value out, with misuse reported as a *StringError so the
// caller can map it onto the runtime error taxonomy.
type StringMethodFn func(recv *ObjString, args []Value) (Value, *StringError)

// StringMethods dispatches method calls on string receivers by name,
// registry-style rather than one large switch, so native modules can add
// entries the same way the built-in set below is installed.
var StringMethods = map[string]StringMethodFn{}

// RegisterStringMethod installs (or replaces) a named string method.
func RegisterStringMethod(name string, fn StringMethodFn) {
	StringMethods[name] = fn
}

func strErr(sub StringSubKind, msg string) *StringError {
	return &StringError{Sub: sub, Message: msg}
}

func argString(args []Value, i, want int, method string) (*ObjString, *StringError) {
	if len(args) != want {
		return nil, strErr(StrInvalidArgument, method+": wrong argument count")
	}
	s, ok := args[i].(*ObjString)
	if !ok {
		return nil, strErr(StrInvalidArgument, method+": argument must be a string")
	}
	return s, nil
}

func argNumber(args []Value, i int, method string) (int, *StringError) {
	if i >= len(args) {
		return 0, strErr(StrInvalidArgument, method+": missing argument")
	}
	n, ok := args[i].(Number)
	if !ok {
		return 0, strErr(StrInvalidArgument, method+": argument must be a number")
	}
	return int(n), nil
}

func init() {
	RegisterStringMethod("len", func(recv *ObjString, args []Value) (Value, *StringError) {
		return NewNumber(float64(recv.CharLen())), nil
	})
	RegisterStringMethod("byte_len", func(recv *ObjString, args []Value) (Value, *StringError) {
		return NewNumber(float64(recv.ByteLen())), nil
	})
	RegisterStringMethod("upper", func(recv *ObjString, args []Value) (Value, *StringError) {
		return NewString(strings.ToUpper(recv.String())), nil
	})
	RegisterStringMethod("lower", func(recv *ObjString, args []Value) (Value, *StringError) {
		return NewString(strings.ToLower(recv.String())), nil
	})
	RegisterStringMethod("trim", func(recv *ObjString, args []Value) (Value, *StringError) {
		return NewString(strings.TrimSpace(recv.String())), nil
	})
	RegisterStringMethod("split", func(recv *ObjString, args []Value) (Value, *StringError) {
		sep, err := argString(args, 0, 1, "split")
		if err != nil {
			return nil, err
		}
		if sep.ByteLen() == 0 {
			return nil, strErr(StrInvalidArgument, "split: separator must be non-empty")
		}
		parts := strings.Split(recv.String(), sep.String())
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = NewString(p)
		}
		return NewArray(out), nil
	})
	RegisterStringMethod("find", func(recv *ObjString, args []Value) (Value, *StringError) {
		needle, err := argString(args, 0, 1, "find")
		if err != nil {
			return nil, err
		}
		byteIdx := strings.Index(recv.String(), needle.String())
		if byteIdx < 0 {
			return NewNumber(-1), nil
		}
		return NewNumber(float64(utf8.RuneCountInString(recv.String()[:byteIdx]))), nil
	})
	RegisterStringMethod("contains", func(recv *ObjString, args []Value) (Value, *StringError) {
		needle, err := argString(args, 0, 1, "contains")
		if err != nil {
			return nil, err
		}
		return Bool(strings.Contains(recv.String(), needle.String())), nil
	})
	RegisterStringMethod("starts_with", func(recv *ObjString, args []Value) (Value, *StringError) {
		prefix, err := argString(args, 0, 1, "starts_with")
		if err != nil {
			return nil, err
		}
		return Bool(strings.HasPrefix(recv.String(), prefix.String())), nil
	})
	RegisterStringMethod("ends_with", func(recv *ObjString, args []Value) (Value, *StringError) {
		suffix, err := argString(args, 0, 1, "ends_with")
		if err != nil {
			return nil, err
		}
		return Bool(strings.HasSuffix(recv.String(), suffix.String())), nil
	})
	RegisterStringMethod("replace", func(recv *ObjString, args []Value) (Value, *StringError) {
		if len(args) != 2 {
			return nil, strErr(StrInvalidArgument, "replace: wrong argument count")
		}
		from, ok1 := args[0].(*ObjString)
		to, ok2 := args[1].(*ObjString)
		if !ok1 || !ok2 {
			return nil, strErr(StrInvalidArgument, "replace: arguments must be strings")
		}
		return NewString(strings.ReplaceAll(recv.String(), from.String(), to.String())), nil
	})
	RegisterStringMethod("slice", func(recv *ObjString, args []Value) (Value, *StringError) {
		start, err := argNumber(args, 0, "slice")
		if err != nil {
			return nil, err
		}
		runes := []rune(recv.String())
		end := len(runes)
		if len(args) > 1 {
			end, err = argNumber(args, 1, "slice")
			if err != nil {
				return nil, err
			}
		}
		if start < 0 {
			start += len(runes)
		}
		if end < 0 {
			end += len(runes)
		}
		if start < 0 || end > len(runes) || start > end {
			return nil, strErr(StrSlice, "slice: bounds out of range")
		}
		return NewString(string(runes[start:end])), nil
	})
	RegisterStringMethod("char_at", func(recv *ObjString, args []Value) (Value, *StringError) {
		idx, err := argNumber(args, 0, "char_at")
		if err != nil {
			return nil, err
		}
		runes := []rune(recv.String())
		if idx < 0 {
			idx += len(runes)
		}
		if idx < 0 || idx >= len(runes) {
			return nil, strErr(StrIndexOutOfBounds, "char_at: index out of range")
		}
		return NewString(string(runes[idx])), nil
	})
}
