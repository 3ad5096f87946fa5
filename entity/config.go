package entity

import (
	"encoding/json"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// BridgeConfig configures an MQTT bridge client. ClientID and
// ClientIDPattern are mutually exclusive ways to identify the session on
// the remote broker.
type BridgeConfig struct {
	BrokerURL       string    `json:"brokerUrl" mapstructure:"brokerUrl"`
	ClientID        string    `json:"clientId,omitempty" mapstructure:"clientId"`
	ClientIDPattern string    `json:"clientIdPattern,omitempty" mapstructure:"clientIdPattern"`
	Username        string    `json:"username,omitempty" mapstructure:"username"`
	Password        string    `json:"password,omitempty" mapstructure:"password"`
	CleanSession    bool      `json:"cleanSession" mapstructure:"cleanSession"`
	TopicFilters    string    `json:"topicFilters" mapstructure:"topicFilters"` // one filter per line
	Addresses       []Address `json:"addresses,omitempty" mapstructure:"addresses"`
}

// DBLoggerConfig configures a database message logger. TableName and
// TableNameJSONPath are mutually exclusive: the table is either fixed or
// derived per message via a JSONPath expression.
type DBLoggerConfig struct {
	JDBCURL           string `json:"jdbcUrl" mapstructure:"jdbcUrl"`
	Username          string `json:"username,omitempty" mapstructure:"username"`
	Password          string `json:"password,omitempty" mapstructure:"password"`
	TableName         string `json:"tableName,omitempty" mapstructure:"tableName"`
	TableNameJSONPath string `json:"tableNameJsonPath,omitempty" mapstructure:"tableNameJsonPath"`
	TopicFilters      string `json:"topicFilters" mapstructure:"topicFilters"`
	Schema            string `json:"schema,omitempty" mapstructure:"schema"` // JSON column schema
	BatchSize         int    `json:"batchSize,omitempty" mapstructure:"batchSize"`
}

// OPCUAConfig configures an OPC UA server connection.
type OPCUAConfig struct {
	EndpointURL        string    `json:"endpointUrl" mapstructure:"endpointUrl"`
	SecurityPolicy     string    `json:"securityPolicy,omitempty" mapstructure:"securityPolicy"`
	Username           string    `json:"username,omitempty" mapstructure:"username"`
	Password           string    `json:"password,omitempty" mapstructure:"password"`
	MonitoringInterval int       `json:"monitoringInterval,omitempty" mapstructure:"monitoringInterval"`
	Addresses          []Address `json:"addresses,omitempty" mapstructure:"addresses"`
}

// PLC4XConfig configures a PLC4X field-device connection.
type PLC4XConfig struct {
	Protocol         string    `json:"protocol" mapstructure:"protocol"`
	ConnectionString string    `json:"connectionString" mapstructure:"connectionString"`
	PollingInterval  int       `json:"pollingInterval,omitempty" mapstructure:"pollingInterval"`
	Addresses        []Address `json:"addresses,omitempty" mapstructure:"addresses"`
}

// WinCCConfig configures a WinCC Unified GraphQL client.
type WinCCConfig struct {
	URL             string    `json:"url" mapstructure:"url"`
	Username        string    `json:"username,omitempty" mapstructure:"username"`
	Password        string    `json:"password,omitempty" mapstructure:"password"`
	MessageQueueMax int       `json:"messageQueueMax,omitempty" mapstructure:"messageQueueMax"`
	Addresses       []Address `json:"addresses,omitempty" mapstructure:"addresses"`
}

// SparkplugConfig configures a Sparkplug B expansion decoder.
type SparkplugConfig struct {
	SourceTopic string `json:"sourceTopic" mapstructure:"sourceTopic"` // e.g. spBv1.0/#
	GroupFilter string `json:"groupFilter,omitempty" mapstructure:"groupFilter"`
}

// DecodeConfig converts a raw config map (as returned by the broker) into
// the typed config for kind. Unknown keys are ignored; the broker may
// carry fields this console does not edit.
func DecodeConfig(kind Kind, raw map[string]any) (any, error) {
	var out any
	switch kind {
	case KindBridge:
		out = &BridgeConfig{}
	case KindDBLogger:
		out = &DBLoggerConfig{}
	case KindOPCUA:
		out = &OPCUAConfig{}
	case KindPLC4X:
		out = &PLC4XConfig{}
	case KindWinCC:
		out = &WinCCConfig{}
	case KindSparkplug:
		out = &SparkplugConfig{}
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true, // GraphQL numbers arrive as float64
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", kind, err)
	}
	return out, nil
}

// EncodeConfig converts a typed config back into the map shape the broker
// mutations expect. A JSON round trip keeps nested address lists in plain
// map form.
func EncodeConfig(cfg any) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
