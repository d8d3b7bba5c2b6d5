package dew

import (
	"fmt"
	"reflect"
)

// Clone produces a deep, structure-sharing-preserving copy of v suitable
// for crossing an OS-thread boundary: cyclic and shared references within
// v are preserved in the copy rather than duplicated, walked idiomatically
// over reflect.Value rather than through a tagged union and an explicit
// byte-oriented wire buffer (see structclone.go for the byte-level codec
// used when a wire format, not just an in-process copy, is required).
//
// Supported: nil, bool, numeric kinds, string, []byte, slices, maps (string
// or numeric keys), structs, and pointers to any of the above. Channels,
// funcs, and unsafe pointers are rejected with CodeNotSupported.
func Clone(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	seen := make(map[uintptr]reflect.Value)
	rv, err := cloneValue(reflect.ValueOf(v), seen)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

func cloneValue(v reflect.Value, seen map[uintptr]reflect.Value) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Invalid:
		return v, nil

	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128, reflect.String:
		return v, nil

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return reflect.Value{}, NewError("clone", CodeNotSupported, fmt.Errorf("unsupported kind %s", v.Kind()))

	case reflect.Ptr:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		addr := v.Pointer()
		if shared, ok := seen[addr]; ok {
			return shared, nil
		}
		out := reflect.New(v.Type().Elem())
		seen[addr] = out
		elem, err := cloneValue(v.Elem(), seen)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Elem().Set(elem)
		return out, nil

	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		addr := v.Pointer()
		if shared, ok := seen[addr]; ok {
			return shared, nil
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		seen[addr] = out
		if v.Type().Elem().Kind() == reflect.Uint8 {
			reflect.Copy(out, v)
			return out, nil
		}
		for i := 0; i < v.Len(); i++ {
			ev, err := cloneValue(v.Index(i), seen)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			ev, err := cloneValue(v.Index(i), seen)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		addr := v.Pointer()
		if shared, ok := seen[addr]; ok {
			return shared, nil
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		seen[addr] = out
		iter := v.MapRange()
		for iter.Next() {
			kv, err := cloneValue(iter.Key(), seen)
			if err != nil {
				return reflect.Value{}, err
			}
			vv, err := cloneValue(iter.Value(), seen)
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(kv, vv)
		}
		return out, nil

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if !f.CanInterface() {
				continue // unexported: not part of the wire contract
			}
			fv, err := cloneValue(f, seen)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Field(i).Set(fv)
		}
		return out, nil

	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		inner, err := cloneValue(v.Elem(), seen)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out, nil

	default:
		return reflect.Value{}, NewError("clone", CodeNotSupported, fmt.Errorf("unsupported kind %s", v.Kind()))
	}
}
