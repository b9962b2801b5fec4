// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package binstruct

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"reflect"

	"git.lukeshu.com/nvmeconf-ng/lib/binstruct/binutil"
)

type Marshaler = encoding.BinaryMarshaler

func Marshal(obj any) ([]byte, error) {
	if mar, ok := obj.(Marshaler); ok {
		dat, err := mar.MarshalBinary()
		if err != nil {
			err = &MarshalError{
				Type:   reflect.TypeOf(obj),
				Method: "MarshalBinary",
				Err:    err,
			}
		}
		return dat, err
	}
	return MarshalWithoutInterface(obj)
}

func MarshalWithoutInterface(obj any) ([]byte, error) {
	val := reflect.ValueOf(obj)
	switch val.Kind() {
	case reflect.Uint8:
		var buf [sizeof8]byte
		buf[0] = byte(val.Uint())
		return buf[:], nil
	case reflect.Uint16:
		var buf [sizeof16]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(val.Uint()))
		return buf[:], nil
	case reflect.Uint32:
		var buf [sizeof32]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(val.Uint()))
		return buf[:], nil
	case reflect.Uint64:
		var buf [sizeof64]byte
		binary.LittleEndian.PutUint64(buf[:], val.Uint())
		return buf[:], nil
	case reflect.Ptr:
		return Marshal(val.Elem().Interface())
	case reflect.Array:
		if isByteArray(val.Type()) {
			// Reserved and vendor-specific regions are large
			// byte arrays; don't round-trip them through
			// reflection one byte at a time.
			ret := make([]byte, val.Len())
			reflect.Copy(reflect.ValueOf(ret), val)
			return ret, nil
		}
		var ret []byte
		for i := 0; i < val.Len(); i++ {
			bs, err := Marshal(val.Index(i).Interface())
			ret = append(ret, bs...)
			if err != nil {
				return ret, err
			}
		}
		return ret, nil
	case reflect.Struct:
		return getStructHandler(val.Type()).Marshal(val)
	default:
		panic(&InvalidTypeError{
			Type: val.Type(),
			Err: fmt.Errorf("does not implement binstruct.Marshaler and kind=%v is not a supported statically-sized kind",
				val.Kind()),
		})
	}
}

// MarshalAt marshals obj and copies it into dst at byte offset off.
// It is how fixed-size records get packed into a command or response
// buffer.
func MarshalAt(dst []byte, off int, obj any) error {
	bs, err := Marshal(obj)
	if err != nil {
		return err
	}
	if err := binutil.NeedRecord(dst, off, len(bs)); err != nil {
		return &OffsetError{
			Type:   reflect.TypeOf(obj),
			Offset: off,
			Err:    err,
		}
	}
	copy(dst[off:], bs)
	return nil
}

func isByteArray(typ reflect.Type) bool {
	return typ.Kind() == reflect.Array &&
		typ.Elem().Kind() == reflect.Uint8 &&
		!typ.Elem().Implements(marshalerType) &&
		!reflect.PointerTo(typ.Elem()).Implements(unmarshalerType)
}
