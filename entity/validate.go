package entity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ValidationError marks a purely local validation failure. The editor
// distinguishes these from remote failures: a validation failure never
// reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// validNamePattern matches safe entity names: alphanumeric, dots,
// underscores, hyphens. Rejects path traversal, whitespace, and markup.
var validNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// ValidateName checks that an entity name is usable as a collection key.
func ValidateName(name string) error {
	if name == "" {
		return invalidf("name", "name is required")
	}
	if !validNamePattern.MatchString(name) {
		return invalidf("name", "name %q contains invalid characters (allowed: a-z A-Z 0-9 . _ -)", name)
	}
	return nil
}

// Validate runs every local check for the entity's kind. createMode
// enables the checks that only apply to new entities (credentials that
// mean "unchanged" when blank during an edit). It never touches the
// network.
func Validate(kind Kind, e *Entity, createMode bool) error {
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	if e.Namespace == "" {
		return invalidf("namespace", "namespace is required")
	}
	if e.NodeID == "" {
		return invalidf("nodeId", "node assignment is required (use %q for automatic)", NodeAuto)
	}

	cfg, err := DecodeConfig(kind, e.Config)
	if err != nil {
		return &ValidationError{Field: "config", Message: err.Error()}
	}

	switch c := cfg.(type) {
	case *BridgeConfig:
		return validateBridge(c, createMode)
	case *DBLoggerConfig:
		return validateDBLogger(c, createMode)
	case *OPCUAConfig:
		return validateOPCUA(c)
	case *PLC4XConfig:
		return validatePLC4X(c)
	case *WinCCConfig:
		return validateWinCC(c, createMode)
	case *SparkplugConfig:
		return validateSparkplug(c)
	}
	return nil
}

func validateBridge(c *BridgeConfig, createMode bool) error {
	if c.BrokerURL == "" {
		return invalidf("brokerUrl", "broker URL is required")
	}
	if c.ClientID != "" && c.ClientIDPattern != "" {
		return invalidf("clientId", "client id and client id pattern cannot both be set")
	}
	if !hasNonBlankLine(c.TopicFilters) {
		return invalidf("topicFilters", "at least one topic filter is required")
	}
	if err := validateAddresses(c.Addresses); err != nil {
		return err
	}
	return nil
}

func validateDBLogger(c *DBLoggerConfig, createMode bool) error {
	if c.JDBCURL == "" {
		return invalidf("jdbcUrl", "JDBC URL is required")
	}
	if c.TableName != "" && c.TableNameJSONPath != "" {
		return invalidf("tableName", "fixed table name and JSONPath table name cannot both be set")
	}
	if c.TableName == "" && c.TableNameJSONPath == "" {
		return invalidf("tableName", "either a table name or a JSONPath table name is required")
	}
	if !hasNonBlankLine(c.TopicFilters) {
		return invalidf("topicFilters", "at least one topic filter is required")
	}
	if c.Schema != "" {
		if !json.Valid([]byte(c.Schema)) {
			return invalidf("schema", "schema must be valid JSON")
		}
	}
	if createMode && c.Password == "" {
		return invalidf("password", "password is required when creating a logger")
	}
	return nil
}

func validateOPCUA(c *OPCUAConfig) error {
	if c.EndpointURL == "" {
		return invalidf("endpointUrl", "endpoint URL is required")
	}
	if c.MonitoringInterval < 0 {
		return invalidf("monitoringInterval", "monitoring interval must be non-negative")
	}
	return validateAddresses(c.Addresses)
}

func validatePLC4X(c *PLC4XConfig) error {
	if c.Protocol == "" {
		return invalidf("protocol", "protocol is required")
	}
	if c.ConnectionString == "" {
		return invalidf("connectionString", "connection string is required")
	}
	return validateAddresses(c.Addresses)
}

func validateWinCC(c *WinCCConfig, createMode bool) error {
	if c.URL == "" {
		return invalidf("url", "server URL is required")
	}
	if createMode && c.Password == "" {
		return invalidf("password", "password is required when creating a client")
	}
	return validateAddresses(c.Addresses)
}

func validateSparkplug(c *SparkplugConfig) error {
	if c.SourceTopic == "" {
		return invalidf("sourceTopic", "source topic is required")
	}
	return nil
}

// ValidateAddress checks one mapping row.
func ValidateAddress(a *Address) error {
	if a.Address == "" {
		return invalidf("address", "address is required")
	}
	if a.Topic == "" {
		return invalidf("topic", "target topic is required")
	}
	if a.QoS < 0 || a.QoS > 2 {
		return invalidf("qos", "QoS must be 0, 1 or 2")
	}
	return nil
}

func validateAddresses(addrs []Address) error {
	seen := make(map[string]bool, len(addrs))
	for i := range addrs {
		if err := ValidateAddress(&addrs[i]); err != nil {
			return err
		}
		if seen[addrs[i].Address] {
			return invalidf("address", "duplicate address %q", addrs[i].Address)
		}
		seen[addrs[i].Address] = true
	}
	return nil
}

// hasNonBlankLine reports whether a multi-line field contains at least
// one non-blank line.
func hasNonBlankLine(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			return true
		}
	}
	return false
}
