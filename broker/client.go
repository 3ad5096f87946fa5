package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/mqdeck/mqdeck/entity"
	"github.com/mqdeck/mqdeck/graph"
)

// kindOps maps an entity kind to its GraphQL field and mutation names.
type kindOps struct {
	one, all string
	create   string
	update   string
	del      string
	toggle   string
	addAddr  string
	updAddr  string
	delAddr  string
}

var ops = map[entity.Kind]kindOps{
	entity.KindBridge: {
		one: "bridge", all: "bridges",
		create: "createBridge", update: "updateBridge", del: "deleteBridge", toggle: "toggleBridge",
		addAddr: "addBridgeAddress", updAddr: "updateBridgeAddress", delAddr: "deleteBridgeAddress",
	},
	entity.KindDBLogger: {
		one: "dbLogger", all: "dbLoggers",
		create: "createDbLogger", update: "updateDbLogger", del: "deleteDbLogger", toggle: "toggleDbLogger",
	},
	entity.KindOPCUA: {
		one: "opcUaConnection", all: "opcUaConnections",
		create: "createOpcUaConnection", update: "updateOpcUaConnection", del: "deleteOpcUaConnection", toggle: "toggleOpcUaConnection",
		addAddr: "addOpcUaAddress", updAddr: "updateOpcUaAddress", delAddr: "deleteOpcUaAddress",
	},
	entity.KindPLC4X: {
		one: "plc4xClient", all: "plc4xClients",
		create: "createPlc4xClient", update: "updatePlc4xClient", del: "deletePlc4xClient", toggle: "togglePlc4xClient",
		addAddr: "addPlc4xAddress", updAddr: "updatePlc4xAddress", delAddr: "deletePlc4xAddress",
	},
	entity.KindWinCC: {
		one: "winCCUaClient", all: "winCCUaClients",
		create: "createWinCCUaClient", update: "updateWinCCUaClient", del: "deleteWinCCUaClient", toggle: "toggleWinCCUaClient",
		addAddr: "addWinCCUaAddress", updAddr: "updateWinCCUaAddress", delAddr: "deleteWinCCUaAddress",
	},
	entity.KindSparkplug: {
		one: "sparkplugDecoder", all: "sparkplugDecoders",
		create: "createSparkplugDecoder", update: "updateSparkplugDecoder", del: "deleteSparkplugDecoder", toggle: "toggleSparkplugDecoder",
	},
}

// entityFields is the selection set fetched for every entity.
const entityFields = "name namespace nodeId enabled config createdAt updatedAt metrics"

const certificateFields = "fingerprint trusted subject issuer validFrom validUntil firstSeen"

const nodeCacheTTL = 5 * time.Minute

// opResult is the structured payload every mutation returns.
type opResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// OperationError is a structured failure reported by the broker
// ({success:false, errors:[...]}).
type OperationError struct {
	Message string
}

func (e *OperationError) Error() string { return e.Message }

// Client implements API against a live GraphQL endpoint. Cluster node
// lookups are cached briefly since they change only on cluster
// membership events.
type Client struct {
	gql   *graph.Client
	nodes *ttlcache.Cache[string, []string]
}

// NewClient wraps gql as a typed admin API.
func NewClient(gql *graph.Client) *Client {
	cache := ttlcache.New[string, []string](
		ttlcache.WithTTL[string, []string](nodeCacheTTL),
	)
	go cache.Start()
	return &Client{gql: gql, nodes: cache}
}

// Close stops the lookup cache janitor.
func (c *Client) Close() { c.nodes.Stop() }

func (c *Client) List(ctx context.Context, kind entity.Kind) ([]entity.Entity, error) {
	op := ops[kind]
	query := fmt.Sprintf("query { %s { %s } }", op.all, entityFields)
	data, err := c.gql.Query(ctx, "list:"+string(kind), query, nil)
	if err != nil {
		return nil, err
	}
	var list []entity.Entity
	if err := json.Unmarshal(data[op.all], &list); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", kind, err)
	}
	return list, nil
}

func (c *Client) Get(ctx context.Context, kind entity.Kind, name string) (*entity.Entity, error) {
	op := ops[kind]
	query := fmt.Sprintf("query($name: String!) { %s(name: $name) { %s } }", op.one, entityFields)
	data, err := c.gql.Query(ctx, "get:"+string(kind), query, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	raw, ok := data[op.one]
	if !ok || string(raw) == "null" {
		return nil, &NotFoundError{Kind: kind, Name: name}
	}
	var e entity.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return &e, nil
}

func (c *Client) Create(ctx context.Context, kind entity.Kind, e *entity.Entity) error {
	op := ops[kind]
	input, err := entityInput(kind, e)
	if err != nil {
		return err
	}
	return c.mutate(ctx, "create:"+string(kind), op.create, map[string]any{"input": input},
		"mutation($input: JSON!) { %s(input: $input) { success errors } }")
}

func (c *Client) Update(ctx context.Context, kind entity.Kind, e *entity.Entity) error {
	op := ops[kind]
	input, err := entityInput(kind, e)
	if err != nil {
		return err
	}
	return c.mutate(ctx, "update:"+string(kind), op.update, map[string]any{"name": e.Name, "input": input},
		"mutation($name: String!, $input: JSON!) { %s(name: $name, input: $input) { success errors } }")
}

func (c *Client) Delete(ctx context.Context, kind entity.Kind, name string) error {
	op := ops[kind]
	return c.mutate(ctx, "delete:"+string(kind), op.del, map[string]any{"name": name},
		"mutation($name: String!) { %s(name: $name) { success errors } }")
}

func (c *Client) Toggle(ctx context.Context, kind entity.Kind, name string, enabled bool) error {
	op := ops[kind]
	return c.mutate(ctx, "toggle:"+string(kind), op.toggle, map[string]any{"name": name, "enabled": enabled},
		"mutation($name: String!, $enabled: Boolean!) { %s(name: $name, enabled: $enabled) { success errors } }")
}

func (c *Client) AddAddress(ctx context.Context, kind entity.Kind, parent string, a entity.Address) error {
	op := ops[kind]
	if op.addAddr == "" {
		return fmt.Errorf("%s entities have no address list", kind)
	}
	return c.mutate(ctx, "addAddress:"+string(kind), op.addAddr,
		map[string]any{"parent": parent, "input": a},
		"mutation($parent: String!, $input: JSON!) { %s(parent: $parent, input: $input) { success errors } }")
}

func (c *Client) UpdateAddress(ctx context.Context, kind entity.Kind, parent string, a entity.Address) error {
	op := ops[kind]
	if op.updAddr == "" {
		return fmt.Errorf("%s entities have no address list", kind)
	}
	return c.mutate(ctx, "updateAddress:"+string(kind), op.updAddr,
		map[string]any{"parent": parent, "address": a.Address, "input": a},
		"mutation($parent: String!, $address: String!, $input: JSON!) { %s(parent: $parent, address: $address, input: $input) { success errors } }")
}

func (c *Client) DeleteAddress(ctx context.Context, kind entity.Kind, parent, address string) error {
	op := ops[kind]
	if op.delAddr == "" {
		return fmt.Errorf("%s entities have no address list", kind)
	}
	return c.mutate(ctx, "deleteAddress:"+string(kind), op.delAddr,
		map[string]any{"parent": parent, "address": address},
		"mutation($parent: String!, $address: String!) { %s(parent: $parent, address: $address) { success errors } }")
}

func (c *Client) ClusterNodeIDs(ctx context.Context) ([]string, error) {
	if item := c.nodes.Get("clusterNodes"); item != nil {
		return item.Value(), nil
	}
	data, err := c.gql.Query(ctx, "clusterNodes", "query { clusterNodes { nodeId } }", nil)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		NodeID string `json:"nodeId"`
	}
	if err := json.Unmarshal(data["clusterNodes"], &raw); err != nil {
		return nil, fmt.Errorf("decode cluster nodes: %w", err)
	}
	ids := make([]string, 0, len(raw)+1)
	ids = append(ids, entity.NodeAuto)
	for _, n := range raw {
		ids = append(ids, n.NodeID)
	}
	c.nodes.Set("clusterNodes", ids, ttlcache.DefaultTTL)
	return ids, nil
}

func (c *Client) ListCertificates(ctx context.Context, server string) ([]entity.Certificate, error) {
	query := fmt.Sprintf("query($server: String!) { opcUaCertificates(server: $server) { %s } }", certificateFields)
	data, err := c.gql.Query(ctx, "listCertificates", query, map[string]any{"server": server})
	if err != nil {
		return nil, err
	}
	var certs []entity.Certificate
	if err := json.Unmarshal(data["opcUaCertificates"], &certs); err != nil {
		return nil, fmt.Errorf("decode certificates: %w", err)
	}
	return certs, nil
}

func (c *Client) TrustCertificate(ctx context.Context, server, fingerprint string) error {
	return c.mutate(ctx, "trustCertificate", "trustOpcUaCertificate",
		map[string]any{"server": server, "fingerprint": fingerprint},
		"mutation($server: String!, $fingerprint: String!) { %s(server: $server, fingerprint: $fingerprint) { success errors } }")
}

func (c *Client) DeleteCertificate(ctx context.Context, server, fingerprint string) error {
	return c.mutate(ctx, "deleteCertificate", "deleteOpcUaCertificate",
		map[string]any{"server": server, "fingerprint": fingerprint},
		"mutation($server: String!, $fingerprint: String!) { %s(server: $server, fingerprint: $fingerprint) { success errors } }")
}

// mutate runs a mutation and converts a structured failure into an
// OperationError carrying the first server message.
func (c *Client) mutate(ctx context.Context, label, field string, vars map[string]any, queryFmt string) error {
	query := fmt.Sprintf(queryFmt, field)
	data, err := c.gql.Query(ctx, label, query, vars)
	if err != nil {
		return err
	}
	var res opResult
	if err := json.Unmarshal(data[field], &res); err != nil {
		return fmt.Errorf("decode %s result: %w", field, err)
	}
	if !res.Success {
		msg := "operation failed"
		if len(res.Errors) > 0 {
			msg = res.Errors[0]
		}
		return &OperationError{Message: msg}
	}
	return nil
}

// entityInput strips server-assigned fields from an entity before it is
// sent in a create/update mutation. The config map is round-tripped
// through its typed form so only editable fields go over the wire, with
// blank secrets staying omitted.
func entityInput(kind entity.Kind, e *entity.Entity) (map[string]any, error) {
	cfg, err := entity.DecodeConfig(kind, e.Config)
	if err != nil {
		return nil, err
	}
	raw, err := entity.EncodeConfig(cfg)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":      e.Name,
		"namespace": e.Namespace,
		"nodeId":    e.NodeID,
		"enabled":   e.Enabled,
		"config":    raw,
	}, nil
}
