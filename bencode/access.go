package bencode

import "fmt"

// Field looks up key in a dictionary Value, returning a descriptive error
// naming the key when it is absent or when v is not a dictionary at all.
func Field(v Value, key string) (Value, error) {
	if v.Kind != KindDict {
		return Value{}, fmt.Errorf("bencode: expected a dictionary, looking up %q", key)
	}
	field, ok := v.Dict[key]
	if !ok {
		return Value{}, fmt.Errorf("bencode: %q not found", key)
	}
	return field, nil
}

// StrField looks up a string-typed field by key.
func StrField(v Value, key string) ([]byte, error) {
	field, err := Field(v, key)
	if err != nil {
		return nil, err
	}
	if field.Kind != KindStr {
		return nil, fmt.Errorf("bencode: %q should be a string", key)
	}
	return field.Str, nil
}

// IntField looks up an integer-typed field by key.
func IntField(v Value, key string) (int64, error) {
	field, err := Field(v, key)
	if err != nil {
		return 0, err
	}
	if field.Kind != KindInt {
		return 0, fmt.Errorf("bencode: %q should be an integer", key)
	}
	return field.Int, nil
}
