// Package editor implements the view-edit-save-delete lifecycle shared
// by every entity page of the admin console. One Controller owns one
// entity's state; pages construct a controller on entry and tear it down
// on exit, so no state leaks between visits.
package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mqdeck/mqdeck/broker"
	"github.com/mqdeck/mqdeck/entity"
	"github.com/mqdeck/mqdeck/observability"
)

// State is the controller's lifecycle position.
type State int

const (
	StateLoading State = iota
	StateReady
	StateSaving
	StateConfirmingDelete
	StateDeleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSaving:
		return "saving"
	case StateConfirmingDelete:
		return "confirming-delete"
	case StateDeleted:
		return "deleted"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Banner levels.
const (
	LevelError   = "error"
	LevelSuccess = "success"
)

// Banner display durations. Error banners linger longer than success
// notices.
const (
	errorBannerTTL   = 5 * time.Second
	successBannerTTL = 3 * time.Second
)

// redirectDelay is how long a "not found" error page is shown before the
// controller fires its redirect callback back to the list view.
const redirectDelay = 3 * time.Second

// Banner is a transient notice shown after an operation.
type Banner struct {
	Level   string
	Message string
	expires time.Time
}

// ErrBusy is returned when an operation is invoked in a state that does
// not permit it.
var ErrBusy = errors.New("editor is busy")

// Controller drives one entity's editor.
type Controller struct {
	api  broker.API
	kind entity.Kind
	log  *slog.Logger
	now  func() time.Time

	mu         sync.Mutex
	state      State
	createMode bool
	name       string
	durable    *entity.Entity // last server-confirmed record
	form       *entity.Entity // working copy
	nodeIDs    []string
	banner     *Banner
	loadErr    error

	redirect      func()
	redirectDelay time.Duration
	redirectTimer *time.Timer
}

// Option configures a Controller.
type Option func(*Controller)

// WithRedirect sets the callback fired (after a fixed delay) when the
// entity turns out not to exist; typically it navigates back to the list
// view.
func WithRedirect(fn func()) Option {
	return func(c *Controller) { c.redirect = fn }
}

// WithRedirectDelay overrides the default redirect delay (tests).
func WithRedirectDelay(d time.Duration) Option {
	return func(c *Controller) { c.redirectDelay = d }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New builds a controller for one entity. An empty name selects create
// mode: the form starts from defaults and the first successful save
// creates the entity. Call Load before anything else.
func New(api broker.API, kind entity.Kind, name string, opts ...Option) *Controller {
	c := &Controller{
		api:           api,
		kind:          kind,
		name:          name,
		createMode:    name == "",
		state:         StateLoading,
		log:           slog.Default(),
		now:           time.Now,
		redirectDelay: redirectDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the lookup lists and, unless in create mode, the entity
// itself. On success the controller is Ready with the form populated
// from the durable record (or defaults). A "not found" failure shows the
// error state and schedules the redirect callback.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateLoading
	c.loadErr = nil
	c.mu.Unlock()

	nodes, err := c.api.ClusterNodeIDs(ctx)
	if err != nil {
		return c.failLoad(err)
	}

	var durable *entity.Entity
	if c.createMode {
		durable = defaultEntity(c.kind)
	} else {
		durable, err = c.api.Get(ctx, c.kind, c.name)
		if err != nil {
			var nf *broker.NotFoundError
			if errors.As(err, &nf) && c.redirect != nil {
				c.mu.Lock()
				c.redirectTimer = time.AfterFunc(c.redirectDelay, c.redirect)
				c.mu.Unlock()
			}
			return c.failLoad(err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodeIDs = nodes
	c.durable = durable
	c.form = durable.Clone()
	scrubSecrets(c.form)
	c.state = StateReady
	return nil
}

func (c *Controller) failLoad(err error) error {
	c.log.Error("entity load failed", "kind", c.kind, "name", c.name, "error", err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateError
	c.loadErr = err
	return err
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LoadError returns the error that put the controller into StateError.
func (c *Controller) LoadError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// NodeIDs returns the cluster node lookup list (first entry is the
// automatic-assignment marker).
func (c *Controller) NodeIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.nodeIDs))
	copy(out, c.nodeIDs)
	return out
}

// Form returns a copy of the working record.
func (c *Controller) Form() *entity.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form.Clone()
}

// Durable returns a copy of the last server-confirmed record.
func (c *Controller) Durable() *entity.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durable.Clone()
}

// Edit mutates the working copy. The entity name stays immutable once
// the record exists; edits to it outside create mode are discarded.
func (c *Controller) Edit(fn func(*entity.Entity)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrBusy
	}
	fn(c.form)
	if !c.createMode {
		c.form.Name = c.name
	}
	return nil
}

// Banner returns the current transient notice, or nil once it expired.
func (c *Controller) Banner() *Banner {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.banner == nil || c.now().After(c.banner.expires) {
		return nil
	}
	b := *c.banner
	return &b
}

func (c *Controller) setBanner(level, message string) {
	ttl := successBannerTTL
	if level == LevelError {
		ttl = errorBannerTTL
	}
	c.banner = &Banner{Level: level, Message: message, expires: c.now().Add(ttl)}
}

// Save validates the working copy and submits it. Validation failures
// abort before any network activity. A remote failure keeps the working
// copy intact so the user can retry; success triggers a full reload so
// the form reflects exactly what the server persisted.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return ErrBusy
	}
	form := c.form.Clone()
	create := c.createMode
	c.mu.Unlock()

	if err := entity.Validate(c.kind, form, create); err != nil {
		observability.EditorSaves.WithLabelValues(string(c.kind), "validation").Inc()
		c.log.Warn("save rejected by validation", "kind", c.kind, "name", form.Name, "error", err)
		c.mu.Lock()
		c.setBanner(LevelError, err.Error())
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state = StateSaving
	c.mu.Unlock()

	payload := form.Clone()
	if !create {
		// A blank credential on edit means "unchanged": do not send it.
		dropBlankSecrets(payload)
	}

	var err error
	if create {
		err = c.api.Create(ctx, c.kind, payload)
	} else {
		err = c.api.Update(ctx, c.kind, payload)
	}
	if err != nil {
		observability.EditorSaves.WithLabelValues(string(c.kind), "remote").Inc()
		c.log.Error("save failed", "kind", c.kind, "name", form.Name, "error", err)
		c.mu.Lock()
		c.state = StateReady
		c.setBanner(LevelError, err.Error())
		c.mu.Unlock()
		return err
	}

	observability.EditorSaves.WithLabelValues(string(c.kind), "ok").Inc()
	c.mu.Lock()
	c.createMode = false
	c.name = form.Name
	c.mu.Unlock()

	if err := c.reload(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.setBanner(LevelSuccess, "saved")
	c.mu.Unlock()
	return nil
}

// reload re-fetches the entity after a successful mutation.
func (c *Controller) reload(ctx context.Context) error {
	observability.EditorReloads.WithLabelValues(string(c.kind)).Inc()
	return c.Load(ctx)
}

// RequestDelete enters the confirmation step. No network activity
// happens until ConfirmDelete.
func (c *Controller) RequestDelete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || c.createMode {
		return ErrBusy
	}
	c.state = StateConfirmingDelete
	return nil
}

// CancelDelete returns to Ready without touching the network.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConfirmingDelete {
		c.state = StateReady
	}
}

// ConfirmDelete sends the delete mutation. It is only legal after
// RequestDelete.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConfirmingDelete {
		c.mu.Unlock()
		return ErrBusy
	}
	name := c.name
	c.mu.Unlock()

	if err := c.api.Delete(ctx, c.kind, name); err != nil {
		c.log.Error("delete failed", "kind", c.kind, "name", name, "error", err)
		c.mu.Lock()
		c.state = StateReady
		c.setBanner(LevelError, err.Error())
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state = StateDeleted
	c.mu.Unlock()
	return nil
}

// Toggle flips the enabled flag to the desired value with a single-field
// mutation and reloads on success.
func (c *Controller) Toggle(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	if c.state != StateReady || c.createMode {
		c.mu.Unlock()
		return ErrBusy
	}
	name := c.name
	c.mu.Unlock()

	if err := c.api.Toggle(ctx, c.kind, name, enabled); err != nil {
		c.log.Error("toggle failed", "kind", c.kind, "name", name, "error", err)
		c.mu.Lock()
		c.setBanner(LevelError, err.Error())
		c.mu.Unlock()
		return err
	}
	return c.reload(ctx)
}

// AddAddress creates one mapping row under this entity and reloads the
// parent. Child-list changes are never batched: each is its own round
// trip.
func (c *Controller) AddAddress(ctx context.Context, a entity.Address) error {
	return c.addressOp(ctx, &a, func(ctx context.Context, name string) error {
		return c.api.AddAddress(ctx, c.kind, name, a)
	})
}

// UpdateAddress replaces the mapping row identified by its natural key.
func (c *Controller) UpdateAddress(ctx context.Context, a entity.Address) error {
	return c.addressOp(ctx, &a, func(ctx context.Context, name string) error {
		return c.api.UpdateAddress(ctx, c.kind, name, a)
	})
}

// DeleteAddress removes the mapping row identified by address.
func (c *Controller) DeleteAddress(ctx context.Context, address string) error {
	return c.addressOp(ctx, nil, func(ctx context.Context, name string) error {
		return c.api.DeleteAddress(ctx, c.kind, name, address)
	})
}

func (c *Controller) addressOp(ctx context.Context, a *entity.Address, op func(ctx context.Context, name string) error) error {
	c.mu.Lock()
	if c.state != StateReady || c.createMode {
		c.mu.Unlock()
		return ErrBusy
	}
	name := c.name
	c.mu.Unlock()

	if a != nil {
		if err := entity.ValidateAddress(a); err != nil {
			c.mu.Lock()
			c.setBanner(LevelError, err.Error())
			c.mu.Unlock()
			return err
		}
	}
	if err := op(ctx, name); err != nil {
		c.log.Error("address operation failed", "kind", c.kind, "name", name, "error", err)
		c.mu.Lock()
		c.setBanner(LevelError, err.Error())
		c.mu.Unlock()
		return err
	}
	return c.reload(ctx)
}

// Teardown cancels any pending redirect. Call when leaving the page.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.redirectTimer != nil {
		c.redirectTimer.Stop()
		c.redirectTimer = nil
	}
}

// defaultEntity is the create-mode starting point.
func defaultEntity(kind entity.Kind) *entity.Entity {
	e := &entity.Entity{
		Namespace: "default",
		NodeID:    entity.NodeAuto,
		Enabled:   true,
		Config:    map[string]any{},
	}
	switch kind {
	case entity.KindBridge:
		e.Config["cleanSession"] = true
		e.Config["topicFilters"] = ""
	case entity.KindDBLogger:
		e.Config["batchSize"] = 100
		e.Config["topicFilters"] = ""
	case entity.KindOPCUA:
		e.Config["securityPolicy"] = "None"
		e.Config["monitoringInterval"] = 1000
	case entity.KindPLC4X:
		e.Config["pollingInterval"] = 1000
	case entity.KindWinCC:
		e.Config["messageQueueMax"] = 10000
	case entity.KindSparkplug:
		e.Config["sourceTopic"] = "spBv1.0/#"
	}
	return e
}

// secretKeys are config fields that the server never returns and the
// form shows blank with an "unchanged if left blank" placeholder.
var secretKeys = []string{"password"}

func scrubSecrets(e *entity.Entity) {
	for _, k := range secretKeys {
		if _, ok := e.Config[k]; ok {
			e.Config[k] = ""
		}
	}
}

func dropBlankSecrets(e *entity.Entity) {
	for _, k := range secretKeys {
		if v, ok := e.Config[k]; ok {
			if s, _ := v.(string); s == "" {
				delete(e.Config, k)
			}
		}
	}
}
