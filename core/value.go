package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// IDKind distinguishes the representations of a GraphqlID.
type IDKind int

const (
	StringIDKind IDKind = iota
	IntIDKind
	UUIDIDKind
)

// GraphqlID identifies a node. It is comparable and may be used as a map key.
type GraphqlID struct {
	Kind IDKind
	Str  string
	Int  int64
	UUID uuid.UUID
}

func StringID(s string) GraphqlID { return GraphqlID{Kind: StringIDKind, Str: s} }

func IntID(i int64) GraphqlID { return GraphqlID{Kind: IntIDKind, Int: i} }

func UUIDID(u uuid.UUID) GraphqlID { return GraphqlID{Kind: UUIDIDKind, UUID: u} }

// NewCUID returns a new string identifier for created nodes.
func NewCUID() GraphqlID {
	return StringID(uuid.Must(uuid.NewV7()).String())
}

// Raw encodes the identifier as a statement parameter.
func (id GraphqlID) Raw() driver.Value {
	switch id.Kind {
	case IntIDKind:
		return id.Int
	case UUIDIDKind:
		return id.UUID.String()
	default:
		return id.Str
	}
}

func (id GraphqlID) String() string {
	switch id.Kind {
	case IntIDKind:
		return strconv.FormatInt(id.Int, 10)
	case UUIDIDKind:
		return id.UUID.String()
	default:
		return id.Str
	}
}

func (id GraphqlID) MarshalJSON() ([]byte, error) {
	if id.Kind == IntIDKind {
		return json.Marshal(id.Int)
	}
	return json.Marshal(id.String())
}

// Value is a typed domain value decoded from, or encoded into, a column.
type Value interface {
	// Raw encodes the value as a driver parameter.
	Raw() driver.Value
	fmt.Stringer
	isValue()
}

type (
	StringValue   string
	IntValue      int64
	FloatValue    float64
	BooleanValue  bool
	EnumValue     string
	JsonValue     string
	DateTimeValue time.Time
	IDValue       GraphqlID
	NullValue     struct{}
	ListValue     []Value
)

func (v StringValue) Raw() driver.Value   { return string(v) }
func (v IntValue) Raw() driver.Value      { return int64(v) }
func (v FloatValue) Raw() driver.Value    { return float64(v) }
func (v BooleanValue) Raw() driver.Value  { return bool(v) }
func (v EnumValue) Raw() driver.Value     { return string(v) }
func (v JsonValue) Raw() driver.Value     { return string(v) }
func (v DateTimeValue) Raw() driver.Value { return time.Time(v).UTC() }
func (v IDValue) Raw() driver.Value       { return GraphqlID(v).Raw() }
func (v NullValue) Raw() driver.Value     { return nil }

// Raw encodes a list as a JSON array. Lists are normally stored in their own
// table; this form is only used when a list is passed as a single parameter.
func (v ListValue) Raw() driver.Value {
	raws := make([]any, len(v))
	for i, e := range v {
		raws[i] = e.Raw()
	}
	b, _ := json.Marshal(raws)
	return string(b)
}

func (v StringValue) String() string   { return string(v) }
func (v IntValue) String() string      { return strconv.FormatInt(int64(v), 10) }
func (v FloatValue) String() string    { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v BooleanValue) String() string  { return strconv.FormatBool(bool(v)) }
func (v EnumValue) String() string     { return string(v) }
func (v JsonValue) String() string     { return string(v) }
func (v DateTimeValue) String() string { return time.Time(v).UTC().Format(time.RFC3339Nano) }
func (v IDValue) String() string       { return GraphqlID(v).String() }
func (v NullValue) String() string     { return "null" }
func (v ListValue) String() string     { return fmt.Sprint([]Value(v)) }

func (StringValue) isValue()   {}
func (IntValue) isValue()      {}
func (FloatValue) isValue()    {}
func (BooleanValue) isValue()  {}
func (EnumValue) isValue()     {}
func (JsonValue) isValue()     {}
func (DateTimeValue) isValue() {}
func (IDValue) isValue()       {}
func (NullValue) isValue()     {}
func (ListValue) isValue()     {}

// Equal reports whether two timestamps denote the same instant.
func (v DateTimeValue) Equal(o DateTimeValue) bool { return time.Time(v).Equal(time.Time(o)) }

// Null is the shared null value.
var Null Value = NullValue{}

// IsNull reports whether v is absent or null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(NullValue)
	return ok
}

// ToGraphqlID converts an identifier-like value to a GraphqlID.
func ToGraphqlID(v Value) (GraphqlID, error) {
	switch t := v.(type) {
	case IDValue:
		return GraphqlID(t), nil
	case StringValue:
		return StringID(string(t)), nil
	case IntValue:
		return IntID(int64(t)), nil
	default:
		return GraphqlID{}, fmt.Errorf("value %v (%T) is not an identifier", v, v)
	}
}

// ToInt64 converts an integer-like value to int64.
func ToInt64(v Value) (int64, error) {
	switch t := v.(type) {
	case IntValue:
		return int64(t), nil
	case FloatValue:
		if float64(t) == float64(int64(t)) {
			return int64(t), nil
		}
	case IDValue:
		if t.Kind == IntIDKind {
			return t.Int, nil
		}
	}
	return 0, fmt.Errorf("value %v (%T) is not an integer", v, v)
}

// ValueFromJSON converts a decoded JSON scalar into a value of the given type.
func ValueFromJSON(t TypeIdentifier, in any) (Value, error) {
	if in == nil {
		return Null, nil
	}
	switch t {
	case StringType, EnumType:
		s, ok := in.(string)
		if !ok {
			break
		}
		if t == EnumType {
			return EnumValue(s), nil
		}
		return StringValue(s), nil
	case IntType:
		if f, ok := in.(float64); ok && f == float64(int64(f)) {
			return IntValue(int64(f)), nil
		}
	case FloatType:
		if f, ok := in.(float64); ok {
			return FloatValue(f), nil
		}
	case BooleanType:
		if b, ok := in.(bool); ok {
			return BooleanValue(b), nil
		}
	case JsonType:
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		return JsonValue(b), nil
	case DateTimeType:
		if s, ok := in.(string); ok {
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, err
			}
			return DateTimeValue(ts.UTC()), nil
		}
	case GraphQLIDType:
		switch id := in.(type) {
		case string:
			return IDValue(StringID(id)), nil
		case float64:
			return IDValue(IntID(int64(id))), nil
		}
	case UUIDType:
		if s, ok := in.(string); ok {
			u, err := uuid.Parse(s)
			if err != nil {
				return nil, err
			}
			return IDValue(UUIDID(u)), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %v (%T) to %s", in, in, t)
}

// ValueToJSON converts a value into its JSON representation.
func ValueToJSON(v Value) any {
	switch t := v.(type) {
	case nil, NullValue:
		return nil
	case StringValue:
		return string(t)
	case EnumValue:
		return string(t)
	case IntValue:
		return int64(t)
	case FloatValue:
		return float64(t)
	case BooleanValue:
		return bool(t)
	case JsonValue:
		return json.RawMessage(t)
	case DateTimeValue:
		return t.String()
	case IDValue:
		return GraphqlID(t)
	case ListValue:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ValueToJSON(e)
		}
		return out
	default:
		return v.String()
	}
}
