package fieldstore

import "reflect"

// mergeValues applies the append-or-merge policy: dict union with shallow
// override, sequence append, string concatenation. Other values of an
// identical type replace the current value. Anything else is a contract
// violation surfaced as TypeMismatchError.
func mergeValues(field string, current, incoming any) (any, error) {
	if current == nil {
		return incoming, nil
	}
	if incoming == nil {
		return current, nil
	}

	cv := reflect.ValueOf(current)
	iv := reflect.ValueOf(incoming)

	switch {
	case cv.Kind() == reflect.Map && iv.Kind() == reflect.Map:
		if cv.Type() != iv.Type() {
			return nil, &TypeMismatchError{Field: field, Have: iv.Type().String(), Want: cv.Type().String()}
		}
		merged := reflect.MakeMapWithSize(cv.Type(), cv.Len()+iv.Len())
		for _, k := range cv.MapKeys() {
			merged.SetMapIndex(k, cv.MapIndex(k))
		}
		// Shared keys take the incoming value: shallow override, not deep merge.
		for _, k := range iv.MapKeys() {
			merged.SetMapIndex(k, iv.MapIndex(k))
		}
		return merged.Interface(), nil

	case cv.Kind() == reflect.String && iv.Kind() == reflect.String:
		return cv.String() + iv.String(), nil

	case cv.Kind() == reflect.Slice && iv.Kind() == reflect.Slice:
		return appendSlices(field, cv, iv)

	case cv.Type() == iv.Type():
		return incoming, nil
	}

	return nil, &TypeMismatchError{Field: field, Have: iv.Type().String(), Want: cv.Type().String()}
}

// appendSlices appends incoming elements onto a copy of current. Cross
// sequence-type pairs are allowed when element types are compatible (or the
// destination element type is interface{}).
func appendSlices(field string, cv, iv reflect.Value) (any, error) {
	out := reflect.MakeSlice(cv.Type(), 0, cv.Len()+iv.Len())
	out = reflect.AppendSlice(out, cv)

	if cv.Type() == iv.Type() {
		out = reflect.AppendSlice(out, iv)
		return out.Interface(), nil
	}

	elem := cv.Type().Elem()
	for i := 0; i < iv.Len(); i++ {
		e := iv.Index(i)
		switch {
		case e.Type().AssignableTo(elem):
			out = reflect.Append(out, e)
		case elem.Kind() == reflect.Interface:
			out = reflect.Append(out, reflect.ValueOf(e.Interface()))
		case e.Kind() == reflect.Interface && reflect.ValueOf(e.Interface()).Type().AssignableTo(elem):
			out = reflect.Append(out, reflect.ValueOf(e.Interface()))
		default:
			return nil, &TypeMismatchError{Field: field, Have: iv.Type().String(), Want: cv.Type().String()}
		}
	}
	return out.Interface(), nil
}
