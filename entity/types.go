// Package entity defines the records managed by the admin console:
// broker extensions (bridges, database loggers, OPC UA and PLC4X
// connections, WinCC clients, Sparkplug decoders), their address
// mappings, and OPC UA certificates.
package entity

// Kind names an entity collection on the broker.
type Kind string

const (
	KindBridge    Kind = "bridge"
	KindDBLogger  Kind = "dblogger"
	KindOPCUA     Kind = "opcua"
	KindPLC4X     Kind = "plc4x"
	KindWinCC     Kind = "wincc"
	KindSparkplug Kind = "sparkplug"
)

// Kinds lists every collection in display order.
var Kinds = []Kind{KindBridge, KindDBLogger, KindOPCUA, KindPLC4X, KindWinCC, KindSparkplug}

// NodeAuto assigns an entity to whichever cluster node the broker picks.
const NodeAuto = "*"

// Entity is one configured broker extension. Name is the collection-wide
// unique key and is immutable after creation. CreatedAt, UpdatedAt and
// Metrics are server-assigned and never written back.
type Entity struct {
	Name      string         `json:"name" mapstructure:"name"`
	Namespace string         `json:"namespace" mapstructure:"namespace"`
	NodeID    string         `json:"nodeId" mapstructure:"nodeId"`
	Enabled   bool           `json:"enabled" mapstructure:"enabled"`
	Config    map[string]any `json:"config" mapstructure:"config"`

	CreatedAt string             `json:"createdAt,omitempty" mapstructure:"createdAt"`
	UpdatedAt string             `json:"updatedAt,omitempty" mapstructure:"updatedAt"`
	Metrics   map[string]float64 `json:"metrics,omitempty" mapstructure:"metrics"`
}

// Clone returns a deep copy usable as an editable working copy.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	if e.Config != nil {
		out.Config = cloneMap(e.Config)
	}
	if e.Metrics != nil {
		out.Metrics = make(map[string]float64, len(e.Metrics))
		for k, v := range e.Metrics {
			out.Metrics[k] = v
		}
	}
	return &out
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case map[string]any:
			out[k] = cloneMap(t)
		case []any:
			cp := make([]any, len(t))
			for i, el := range t {
				if m, ok := el.(map[string]any); ok {
					cp[i] = cloneMap(m)
				} else {
					cp[i] = el
				}
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// Address is one mapping row inside a bridge, PLC4X, or WinCC config.
// Address is the natural key within the parent's list: a remote topic
// filter for bridges, a tag address for PLC4X and WinCC.
type Address struct {
	Address  string `json:"address" mapstructure:"address"`
	Topic    string `json:"topic" mapstructure:"topic"`
	QoS      int    `json:"qos" mapstructure:"qos"`
	Retained bool   `json:"retained" mapstructure:"retained"`

	ScalingFactor float64 `json:"scalingFactor,omitempty" mapstructure:"scalingFactor"`
	Offset        float64 `json:"offset,omitempty" mapstructure:"offset"`
	Deadband      float64 `json:"deadband,omitempty" mapstructure:"deadband"`
}

// Certificate is an OPC UA peer certificate known to a server connection.
// A certificate is in exactly one of the trusted or rejected sets;
// promotion from rejected to trusted is its own mutation, not a field
// edit.
type Certificate struct {
	Fingerprint string `json:"fingerprint" mapstructure:"fingerprint"`
	Trusted     bool   `json:"trusted" mapstructure:"trusted"`
	Subject     string `json:"subject" mapstructure:"subject"`
	Issuer      string `json:"issuer" mapstructure:"issuer"`
	ValidFrom   string `json:"validFrom" mapstructure:"validFrom"`
	ValidUntil  string `json:"validUntil" mapstructure:"validUntil"`
	FirstSeen   string `json:"firstSeen" mapstructure:"firstSeen"`
}
