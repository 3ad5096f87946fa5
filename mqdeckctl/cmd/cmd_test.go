package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mqdeck/mqdeck/broker"
	"github.com/mqdeck/mqdeck/entity"
)

// fakeBroker is an in-memory broker.API for command tests.
type fakeBroker struct {
	mu       sync.Mutex
	entities map[string]*entity.Entity
	certs    []entity.Certificate
	trusted  []string
}

var _ broker.API = (*fakeBroker)(nil)

func newFakeBroker() *fakeBroker {
	return &fakeBroker{entities: map[string]*entity.Entity{}}
}

func (f *fakeBroker) List(ctx context.Context, kind entity.Kind) ([]entity.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Entity
	for _, e := range f.entities {
		out = append(out, *e.Clone())
	}
	return out, nil
}

func (f *fakeBroker) Get(ctx context.Context, kind entity.Kind, name string) (*entity.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[name]
	if !ok {
		return nil, &broker.NotFoundError{Kind: kind, Name: name}
	}
	return e.Clone(), nil
}

func (f *fakeBroker) Create(ctx context.Context, kind entity.Kind, e *entity.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.entities[e.Name]; exists {
		return &broker.OperationError{Message: fmt.Sprintf("%s already exists", e.Name)}
	}
	f.entities[e.Name] = e.Clone()
	return nil
}

func (f *fakeBroker) Update(ctx context.Context, kind entity.Kind, e *entity.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entities[e.Name]; !ok {
		return &broker.NotFoundError{Kind: kind, Name: e.Name}
	}
	f.entities[e.Name] = e.Clone()
	return nil
}

func (f *fakeBroker) Delete(ctx context.Context, kind entity.Kind, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entities[name]; !ok {
		return &broker.NotFoundError{Kind: kind, Name: name}
	}
	delete(f.entities, name)
	return nil
}

func (f *fakeBroker) Toggle(ctx context.Context, kind entity.Kind, name string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[name]
	if !ok {
		return &broker.NotFoundError{Kind: kind, Name: name}
	}
	e.Enabled = enabled
	return nil
}

func (f *fakeBroker) AddAddress(ctx context.Context, kind entity.Kind, parent string, a entity.Address) error {
	return nil
}

func (f *fakeBroker) UpdateAddress(ctx context.Context, kind entity.Kind, parent string, a entity.Address) error {
	return nil
}

func (f *fakeBroker) DeleteAddress(ctx context.Context, kind entity.Kind, parent, address string) error {
	return nil
}

func (f *fakeBroker) ClusterNodeIDs(ctx context.Context) ([]string, error) {
	return []string{entity.NodeAuto, "node-a"}, nil
}

func (f *fakeBroker) ListCertificates(ctx context.Context, server string) ([]entity.Certificate, error) {
	return append([]entity.Certificate(nil), f.certs...), nil
}

func (f *fakeBroker) TrustCertificate(ctx context.Context, server, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trusted = append(f.trusted, fingerprint)
	return nil
}

func (f *fakeBroker) DeleteCertificate(ctx context.Context, server, fingerprint string) error {
	return nil
}

func execute(t *testing.T, fake *fakeBroker, args ...string) (string, error) {
	t.Helper()
	SetClient(fake)
	t.Cleanup(func() {
		SetClient(nil)
		outputFormat = "table"
		yesFlag = false
	})
	buf := new(bytes.Buffer)
	root := RootCmd()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func seedBridge(f *fakeBroker, name string, enabled bool) {
	f.entities[name] = &entity.Entity{
		Name: name, Namespace: "default", NodeID: "*", Enabled: enabled,
		Config: map[string]any{
			"brokerUrl": "tcp://up:1883", "clientId": "c", "topicFilters": "a/#",
		},
	}
}

func TestListCommand(t *testing.T) {
	fake := newFakeBroker()
	seedBridge(fake, "plant-a", true)
	seedBridge(fake, "plant-b", false)

	out, err := execute(t, fake, "list", "bridge")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "plant-a") || !strings.Contains(out, "plant-b") {
		t.Fatalf("output = %s", out)
	}
	if !strings.Contains(out, "NAME") {
		t.Fatalf("missing table header: %s", out)
	}
}

func TestListCommandUnknownKind(t *testing.T) {
	if _, err := execute(t, newFakeBroker(), "list", "toaster"); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestGetCommandJSON(t *testing.T) {
	fake := newFakeBroker()
	seedBridge(fake, "plant-a", true)

	out, err := execute(t, fake, "get", "bridge", "plant-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var e entity.Entity
	if err := json.Unmarshal([]byte(out), &e); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if e.Name != "plant-a" {
		t.Fatalf("entity = %+v", e)
	}
}

func TestApplyCreatesAndUpdates(t *testing.T) {
	fake := newFakeBroker()
	path := filepath.Join(t.TempDir(), "bridge.json")
	payload := map[string]any{
		"name": "fresh", "namespace": "default", "nodeId": "*", "enabled": true,
		"config": map[string]any{
			"brokerUrl": "tcp://up:1883", "clientId": "c", "topicFilters": "a/#",
		},
	}
	data, _ := json.Marshal(payload)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, fake, "apply", "bridge", "-f", path)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(out, "created") {
		t.Fatalf("output = %s", out)
	}
	if _, ok := fake.entities["fresh"]; !ok {
		t.Fatal("entity not created")
	}

	out, err = execute(t, fake, "apply", "bridge", "-f", path)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !strings.Contains(out, "updated") {
		t.Fatalf("output = %s", out)
	}
}

func TestApplyRejectsInvalidEntity(t *testing.T) {
	fake := newFakeBroker()
	path := filepath.Join(t.TempDir(), "bad.json")
	data, _ := json.Marshal(map[string]any{
		"name": "bad", "namespace": "default", "nodeId": "*",
		"config": map[string]any{"clientId": "c"},
	})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, fake, "apply", "bridge", "-f", path); err == nil {
		t.Fatal("invalid entity applied")
	}
	if len(fake.entities) != 0 {
		t.Fatal("invalid entity reached the broker")
	}
}

func TestDeleteWithYesFlag(t *testing.T) {
	fake := newFakeBroker()
	seedBridge(fake, "doomed", true)

	out, err := execute(t, fake, "delete", "bridge", "doomed", "--yes")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "deleted") {
		t.Fatalf("output = %s", out)
	}
	if _, ok := fake.entities["doomed"]; ok {
		t.Fatal("entity still present")
	}
}

func TestDeletePromptAbortsOnNo(t *testing.T) {
	fake := newFakeBroker()
	seedBridge(fake, "kept", true)

	SetClient(fake)
	t.Cleanup(func() { SetClient(nil); yesFlag = false })
	buf := new(bytes.Buffer)
	root := RootCmd()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader("n\n"))
	root.SetArgs([]string{"delete", "bridge", "kept"})
	if err := root.Execute(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(buf.String(), "aborted") {
		t.Fatalf("output = %s", buf.String())
	}
	if _, ok := fake.entities["kept"]; !ok {
		t.Fatal("entity deleted despite declined prompt")
	}
}

func TestToggleCommand(t *testing.T) {
	fake := newFakeBroker()
	seedBridge(fake, "plant-a", true)

	if _, err := execute(t, fake, "toggle", "bridge", "plant-a", "off"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if fake.entities["plant-a"].Enabled {
		t.Fatal("entity still enabled")
	}
	if _, err := execute(t, fake, "toggle", "bridge", "plant-a", "sideways"); err == nil {
		t.Fatal("bad toggle argument accepted")
	}
}

func TestTrustCommand(t *testing.T) {
	fake := newFakeBroker()
	out, err := execute(t, fake, "trust", "opc1", "ab:cd:ef")
	if err != nil {
		t.Fatalf("trust: %v", err)
	}
	if !strings.Contains(out, "trusted") {
		t.Fatalf("output = %s", out)
	}
	if len(fake.trusted) != 1 || fake.trusted[0] != "ab:cd:ef" {
		t.Fatalf("trusted = %v", fake.trusted)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	fake := newFakeBroker()
	seedBridge(fake, "plant-a", true)
	dir := t.TempDir()

	out, err := execute(t, fake, "export", "bridge", "--dir", dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "exported 1") {
		t.Fatalf("output = %s", out)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("archive dir = %v err %v", entries, err)
	}
	archive := filepath.Join(dir, entries[0].Name())

	// Import into an empty broker.
	other := newFakeBroker()
	out, err = execute(t, other, "import", "bridge", archive)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported 1 of 1") {
		t.Fatalf("output = %s", out)
	}
	if _, ok := other.entities["plant-a"]; !ok {
		t.Fatal("entity missing after import")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, newFakeBroker(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "mqdeckctl") {
		t.Fatalf("output = %s", out)
	}
}
