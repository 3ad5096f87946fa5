// Package sparkplug decodes Sparkplug B payloads far enough to show a
// decoder's live metric stream: payload timestamp and sequence plus
// each metric's name, alias, type and value. It walks the wire format
// directly, so no generated protobuf code is needed; unknown fields
// are skipped, which keeps newer payload revisions readable.
package sparkplug

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// DataType is the Sparkplug B metric datatype code.
type DataType uint32

const (
	TypeUnknown  DataType = 0
	TypeInt8     DataType = 1
	TypeInt16    DataType = 2
	TypeInt32    DataType = 3
	TypeInt64    DataType = 4
	TypeUInt8    DataType = 5
	TypeUInt16   DataType = 6
	TypeUInt32   DataType = 7
	TypeUInt64   DataType = 8
	TypeFloat    DataType = 9
	TypeDouble   DataType = 10
	TypeBoolean  DataType = 11
	TypeString   DataType = 12
	TypeDateTime DataType = 13
	TypeText     DataType = 14
)

func (d DataType) String() string {
	switch d {
	case TypeInt8:
		return "Int8"
	case TypeInt16:
		return "Int16"
	case TypeInt32:
		return "Int32"
	case TypeInt64:
		return "Int64"
	case TypeUInt8:
		return "UInt8"
	case TypeUInt16:
		return "UInt16"
	case TypeUInt32:
		return "UInt32"
	case TypeUInt64:
		return "UInt64"
	case TypeFloat:
		return "Float"
	case TypeDouble:
		return "Double"
	case TypeBoolean:
		return "Boolean"
	case TypeString:
		return "String"
	case TypeDateTime:
		return "DateTime"
	case TypeText:
		return "Text"
	}
	return "Unknown(" + strconv.FormatUint(uint64(d), 10) + ")"
}

// Metric is one decoded metric.
type Metric struct {
	Name      string
	Alias     uint64
	Timestamp time.Time
	DataType  DataType
	IsNull    bool
	Value     any
}

// ValueString renders the value for display.
func (m Metric) ValueString() string {
	if m.IsNull {
		return "null"
	}
	switch v := m.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Payload is one decoded Sparkplug B message.
type Payload struct {
	Timestamp time.Time
	Seq       uint64
	UUID      string
	Metrics   []Metric
}

// Payload field numbers.
const (
	fPayloadTimestamp = 1
	fPayloadMetrics   = 2
	fPayloadSeq       = 3
	fPayloadUUID      = 4
)

// Metric field numbers. 10-16 are the value oneof.
const (
	fMetricName      = 1
	fMetricAlias     = 2
	fMetricTimestamp = 3
	fMetricDataType  = 4
	fMetricIsNull    = 7
	fMetricIntVal    = 10
	fMetricLongVal   = 11
	fMetricFloatVal  = 12
	fMetricDoubleVal = 13
	fMetricBoolVal   = 14
	fMetricStringVal = 15
	fMetricBytesVal  = 16
)

// DecodePayload decodes one Sparkplug B payload.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("malformed payload: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == fPayloadTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("malformed payload timestamp: %w", protowire.ParseError(n))
			}
			p.Timestamp = epochMillis(v)
			data = data[n:]
		case num == fPayloadSeq && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("malformed payload seq: %w", protowire.ParseError(n))
			}
			p.Seq = v
			data = data[n:]
		case num == fPayloadUUID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("malformed payload uuid: %w", protowire.ParseError(n))
			}
			p.UUID = string(v)
			data = data[n:]
		case num == fPayloadMetrics && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("malformed metric entry: %w", protowire.ParseError(n))
			}
			m, err := decodeMetric(v)
			if err != nil {
				return nil, err
			}
			p.Metrics = append(p.Metrics, m)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("malformed payload field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return &p, nil
}

func decodeMetric(data []byte) (Metric, error) {
	var m Metric
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, fmt.Errorf("malformed metric: %w", protowire.ParseError(n))
		}
		data = data[n:]

		bad := func(what string, n int) error {
			return fmt.Errorf("malformed metric %s: %w", what, protowire.ParseError(n))
		}

		switch {
		case num == fMetricName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return m, bad("name", n)
			}
			m.Name = string(v)
			data = data[n:]
		case num == fMetricAlias && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, bad("alias", n)
			}
			m.Alias = v
			data = data[n:]
		case num == fMetricTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, bad("timestamp", n)
			}
			m.Timestamp = epochMillis(v)
			data = data[n:]
		case num == fMetricDataType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, bad("datatype", n)
			}
			m.DataType = DataType(v)
			data = data[n:]
		case num == fMetricIsNull && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, bad("is_null", n)
			}
			m.IsNull = v != 0
			data = data[n:]
		case num == fMetricIntVal && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, bad("int value", n)
			}
			m.Value = signedIfNeeded(m.DataType, v)
			data = data[n:]
		case num == fMetricLongVal && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, bad("long value", n)
			}
			if m.DataType == TypeDateTime {
				m.Value = epochMillis(v)
			} else if m.DataType == TypeInt64 {
				m.Value = int64(v)
			} else {
				m.Value = v
			}
			data = data[n:]
		case num == fMetricFloatVal && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return m, bad("float value", n)
			}
			m.Value = math.Float32frombits(v)
			data = data[n:]
		case num == fMetricDoubleVal && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return m, bad("double value", n)
			}
			m.Value = math.Float64frombits(v)
			data = data[n:]
		case num == fMetricBoolVal && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, bad("bool value", n)
			}
			m.Value = v != 0
			data = data[n:]
		case num == fMetricStringVal && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return m, bad("string value", n)
			}
			m.Value = string(v)
			data = data[n:]
		case num == fMetricBytesVal && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return m, bad("bytes value", n)
			}
			m.Value = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return m, fmt.Errorf("malformed metric field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return m, nil
}

// The int_value slot carries every type up to 32 bits; signed types
// come through as their two's-complement bit pattern.
func signedIfNeeded(t DataType, v uint64) any {
	switch t {
	case TypeInt8, TypeInt16, TypeInt32:
		return int64(int32(uint32(v)))
	default:
		return v
	}
}

func epochMillis(v uint64) time.Time {
	return time.UnixMilli(int64(v)).UTC()
}

// Topic is a parsed Sparkplug topic:
// spBv1.0/<group>/<messageType>/<edgeNode>[/<device>].
type Topic struct {
	Group       string
	MessageType string
	EdgeNode    string
	Device      string
}

// ParseTopic splits a Sparkplug topic. Non-Sparkplug topics error.
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != "spBv1.0" {
		return Topic{}, fmt.Errorf("not a Sparkplug B topic: %q", topic)
	}
	t := Topic{Group: parts[1], MessageType: parts[2], EdgeNode: parts[3]}
	if len(parts) > 4 {
		t.Device = strings.Join(parts[4:], "/")
	}
	return t, nil
}
