package builtins

import (
	"math"
	"math/rand"

	"neutron/types"
)

// InitMath registers the math module: trig, rounding, logarithms, and
// random-number helpers over this language's single Number type.
func InitMath(reg *Registry) *types.Module {
	mod := types.NewModule("math")
	exports := mod.Exports
	exports.Set("pi", types.NewNumber(math.Pi))
	exports.Set("e", types.NewNumber(math.E))

	unary := func(name string, f func(float64) float64) {
		exports.Set(name, Native(name, 1, func(_ any, args []types.Value) (types.Value, error) {
			n, err := requireNumber(args, 0, name)
			if err != nil {
				return nil, err
			}
			return types.NewNumber(f(float64(n))), nil
		}))
	}
	unary("sqrt", math.Sqrt)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("asin", math.Asin)
	unary("acos", math.Acos)
	unary("atan", math.Atan)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("abs", math.Abs)

	exports.Set("pow", Native("pow", 2, func(_ any, args []types.Value) (types.Value, error) {
		a, err := requireNumber(args, 0, "pow")
		if err != nil {
			return nil, err
		}
		b, err := requireNumber(args, 1, "pow")
		if err != nil {
			return nil, err
		}
		return types.NewNumber(math.Pow(float64(a), float64(b))), nil
	}))

	exports.Set("min", Native("min", 2, func(_ any, args []types.Value) (types.Value, error) {
		a, err := requireNumber(args, 0, "min")
		if err != nil {
			return nil, err
		}
		b, err := requireNumber(args, 1, "min")
		if err != nil {
			return nil, err
		}
		return types.NewNumber(math.Min(float64(a), float64(b))), nil
	}))

	exports.Set("max", Native("max", 2, func(_ any, args []types.Value) (types.Value, error) {
		a, err := requireNumber(args, 0, "max")
		if err != nil {
			return nil, err
		}
		b, err := requireNumber(args, 1, "max")
		if err != nil {
			return nil, err
		}
		return types.NewNumber(math.Max(float64(a), float64(b))), nil
	}))

	exports.Set("random", Native("random", 0, func(_ any, args []types.Value) (types.Value, error) {
		return types.NewNumber(rand.Float64()), nil
	}))

	return mod
}

func requireNumber(args []types.Value, i int, fname string) (types.Number, error) {
	if i >= len(args) {
		return 0, types.NewRuntimeError(types.ErrArity, 0, "%s: missing argument %d", fname, i)
	}
	n, ok := args[i].(types.Number)
	if !ok {
		return 0, types.NewRuntimeError(types.ErrType, 0, "%s: argument %d must be a number, got %s", fname, i, args[i].Type())
	}
	return n, nil
}

func requireString(args []types.Value, i int, fname string) (*types.ObjString, error) {
	if i >= len(args) {
		return nil, types.NewRuntimeError(types.ErrArity, 0, "%s: missing argument %d", fname, i)
	}
	s, ok := args[i].(*types.ObjString)
	if !ok {
		return nil, types.NewRuntimeError(types.ErrType, 0, "%s: argument %d must be a string, got %s", fname, i, args[i].Type())
	}
	return s, nil
}
