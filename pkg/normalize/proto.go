// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package normalize

import (
	"sort"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// protoObject adapts protobuf values, whose generated structs hold only
// internal state, into plain Go values. ok reports whether v is a protobuf
// shape at all.
func protoObject(v any) (out any, ok bool, err error) {
	switch t := v.(type) {
	case *timestamppb.Timestamp:
		if err := t.CheckValid(); err != nil {
			return nil, true, err
		}
		return t.AsTime(), true, nil
	case proto.Message:
		data, err := call(func() ([]byte, error) { return protojson.Marshal(t) })
		if err != nil {
			return nil, true, err
		}
		decoded, err := Decode(data)
		if err != nil {
			return nil, true, err
		}
		return decoded, true, nil
	case protoreflect.Message:
		return t.Interface(), true, nil
	case protoreflect.List:
		items := make([]any, t.Len())
		for i := range items {
			items[i] = t.Get(i).Interface()
		}
		return items, true, nil
	case protoreflect.Map:
		obj := NewObject(t.Len())
		keys := make([]protoreflect.MapKey, 0, t.Len())
		t.Range(func(k protoreflect.MapKey, _ protoreflect.Value) bool {
			keys = append(keys, k)
			return true
		})
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			obj.Set(k.String(), t.Get(k).Interface())
		}
		return obj, true, nil
	case protoreflect.Value:
		return t.Interface(), true, nil
	}
	return nil, false, nil
}
