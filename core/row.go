package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Row is one decoded result row, in projection order.
type Row struct {
	Values []Value
}

// RelationProjection is a row read through a relation traversal, with the
// traversal metadata split from the related node's own values.
type RelationProjection struct {
	Values   []Value
	JoinID   GraphqlID
	ParentID GraphqlID
}

// Layouts accepted for DateTime values stored as text.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// DecodeRow converts a raw row positionally against idents.
func DecodeRow(raw []any, idents []TypeIdentifier) (Row, error) {
	if len(raw) != len(idents) {
		return Row{}, fmt.Errorf("row has %d columns but %d type identifiers were declared", len(raw), len(idents))
	}
	values := make([]Value, len(raw))
	for i, r := range raw {
		v, err := DecodeValue(r, idents[i])
		if err != nil {
			if de, ok := err.(*DecodeError); ok {
				de.Column = i
			}
			return Row{}, err
		}
		values[i] = v
	}
	return Row{Values: values}, nil
}

// DecodeValue converts a single raw column value.
func DecodeValue(raw any, t TypeIdentifier) (Value, error) {
	if raw == nil {
		return Null, nil
	}
	fail := &DecodeError{Type: t, Raw: raw}

	switch t {
	case StringType, EnumType, JsonType:
		var s string
		switch r := raw.(type) {
		case string:
			s = r
		case []byte:
			s = string(r)
		default:
			return nil, fail
		}
		switch t {
		case EnumType:
			return EnumValue(s), nil
		case JsonType:
			if !json.Valid([]byte(s)) {
				return nil, fail
			}
			return JsonValue(s), nil
		}
		return StringValue(s), nil

	case IntType:
		i, ok := asInt64(raw)
		if !ok {
			return nil, fail
		}
		return IntValue(i), nil

	case FloatType:
		switch r := raw.(type) {
		case float64:
			return FloatValue(r), nil
		case float32:
			return FloatValue(float64(r)), nil
		}
		if i, ok := asInt64(raw); ok {
			return FloatValue(float64(i)), nil
		}
		return nil, fail

	case BooleanType:
		if b, ok := raw.(bool); ok {
			return BooleanValue(b), nil
		}
		if i, ok := asInt64(raw); ok && (i == 0 || i == 1) {
			return BooleanValue(i == 1), nil
		}
		return nil, fail

	case DateTimeType:
		switch r := raw.(type) {
		case time.Time:
			return DateTimeValue(r.UTC()), nil
		case string:
			ts, ok := parseDateTime(r)
			if !ok {
				return nil, fail
			}
			return DateTimeValue(ts), nil
		}
		if ms, ok := asInt64(raw); ok {
			return DateTimeValue(time.UnixMilli(ms).UTC()), nil
		}
		return nil, fail

	case GraphQLIDType:
		switch r := raw.(type) {
		case string:
			return IDValue(StringID(r)), nil
		case []byte:
			return IDValue(StringID(string(r))), nil
		}
		if i, ok := asInt64(raw); ok {
			return IDValue(IntID(i)), nil
		}
		return nil, fail

	case UUIDType:
		var (
			u   uuid.UUID
			err error
		)
		switch r := raw.(type) {
		case uuid.UUID:
			u = r
		case [16]byte:
			u = uuid.UUID(r)
		case string:
			u, err = uuid.Parse(r)
		case []byte:
			if len(r) == 16 {
				u, err = uuid.FromBytes(r)
			} else {
				u, err = uuid.ParseBytes(r)
			}
		default:
			return nil, fail
		}
		if err != nil {
			return nil, fail
		}
		return IDValue(UUIDID(u)), nil
	}

	return nil, fail
}

func asInt64(raw any) (int64, bool) {
	switch r := raw.(type) {
	case int64:
		return r, true
	case int:
		return int64(r), true
	case int32:
		return int64(r), true
	case int16:
		return int64(r), true
	case int8:
		return int64(r), true
	case uint32:
		return int64(r), true
	case uint16:
		return int64(r), true
	case uint8:
		return int64(r), true
	}
	return 0, false
}

func parseDateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
