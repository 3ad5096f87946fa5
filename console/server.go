package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqdeck/mqdeck/assist"
	"github.com/mqdeck/mqdeck/broker"
	"github.com/mqdeck/mqdeck/editor"
	"github.com/mqdeck/mqdeck/entity"
	"github.com/mqdeck/mqdeck/listview"
	"github.com/mqdeck/mqdeck/overlay"
	"github.com/mqdeck/mqdeck/probe"
	"github.com/mqdeck/mqdeck/session"
	"github.com/mqdeck/mqdeck/transfer"
	"github.com/mqdeck/mqdeck/view"
)

// Server is the console's HTTP surface: HTML pages for browsing, a
// JSON API for the editor workflow, a WebSocket feed of collection
// snapshots, and prometheus metrics.
type Server struct {
	api      broker.API
	sessions *session.Manager
	pollers  map[entity.Kind]*listview.Poller[entity.Entity]
	hub      *SnapshotHub
	prober   *probe.Prober
	ai       *assist.Client
	overlays *overlay.Manager
	assistMu sync.Mutex
	log      *slog.Logger

	upgrader websocket.Upgrader
}

// NewServer wires the handler graph.
func NewServer(api broker.API, sessions *session.Manager, pollers map[entity.Kind]*listview.Poller[entity.Entity], hub *SnapshotHub, prober *probe.Prober, ai *assist.Client, log *slog.Logger) *Server {
	return &Server{
		api:      api,
		sessions: sessions,
		pollers:  pollers,
		hub:      hub,
		prober:   prober,
		ai:       ai,
		overlays: overlay.NewManager(),
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Routes builds the mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/c/bridge", http.StatusFound)
	})
	mux.HandleFunc("GET /c/{kind}", s.handleListPage)

	mux.HandleFunc("GET /api/session", s.handleSessionStatus)
	mux.HandleFunc("POST /api/session", s.handleSessionSet)
	mux.HandleFunc("DELETE /api/session", s.handleSessionClear)

	mux.HandleFunc("GET /api/{kind}", s.handleList)
	mux.HandleFunc("POST /api/{kind}", s.requireSession(s.handleCreate))
	mux.HandleFunc("GET /api/{kind}/{name}", s.requireSession(s.handleGet))
	mux.HandleFunc("PUT /api/{kind}/{name}", s.requireSession(s.handleUpdate))
	mux.HandleFunc("DELETE /api/{kind}/{name}", s.requireSession(s.handleDelete))
	mux.HandleFunc("POST /api/{kind}/{name}/toggle", s.requireSession(s.handleToggle))

	mux.HandleFunc("POST /api/{kind}/{name}/addresses", s.requireSession(s.handleAddressAdd))
	mux.HandleFunc("PUT /api/{kind}/{name}/addresses/{address}", s.requireSession(s.handleAddressUpdate))
	mux.HandleFunc("DELETE /api/{kind}/{name}/addresses/{address}", s.requireSession(s.handleAddressDelete))

	mux.HandleFunc("GET /api/{kind}/-/export", s.requireSession(s.handleExport))
	mux.HandleFunc("POST /api/{kind}/-/import", s.requireSession(s.handleImport))

	mux.HandleFunc("GET /api/certificates", s.requireSession(s.handleCertificates))
	mux.HandleFunc("POST /api/certificates/{fingerprint}/trust", s.requireSession(s.handleCertificateTrust))
	mux.HandleFunc("DELETE /api/certificates/{fingerprint}", s.requireSession(s.handleCertificateDelete))

	mux.HandleFunc("POST /api/probe/mqtt", s.handleProbeMQTT)
	mux.HandleFunc("POST /api/probe/postgres", s.handleProbePostgres)

	mux.HandleFunc("POST /api/script/check", s.handleScriptCheck)
	mux.HandleFunc("POST /api/script/assist", s.handleScriptAssist)

	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *Server) kind(r *http.Request) (entity.Kind, error) {
	k := entity.Kind(r.PathValue("kind"))
	for _, known := range entity.Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", string(k))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("response encode failed", "error", err)
	}
}

// writeError maps the error taxonomy onto status codes: local
// validation 422, unknown entity 404, broker-side rejection 409,
// everything else a 502 because the console itself is fine.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		ve *entity.ValidationError
		nf *broker.NotFoundError
		op *broker.OperationError
	)
	status := http.StatusBadGateway
	switch {
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &nf):
		status = http.StatusNotFound
	case errors.As(err, &op):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// requireSession blocks broker-backed routes while no valid session
// token is stored. Cached list pages stay readable so an expired login
// degrades to read-only instead of a blank console.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.LoggedIn() {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired or not logged in"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"loggedIn": s.sessions.LoggedIn()})
}

func (s *Server) handleSessionSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		s.writeError(w, &entity.ValidationError{Field: "token", Message: "token is required"})
		return
	}
	s.sessions.SetToken(body.Token)
	s.writeJSON(w, http.StatusOK, map[string]bool{"loggedIn": s.sessions.LoggedIn()})
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearToken()
	w.WriteHeader(http.StatusNoContent)
}

var pageNav = []view.NavItem{
	{Label: "Bridges", Href: "/c/bridge", Key: "bridge"},
	{Label: "DB Loggers", Href: "/c/dblogger", Key: "dblogger"},
	{Label: "OPC UA", Href: "/c/opcua", Key: "opcua"},
	{Label: "PLC4X", Href: "/c/plc4x", Key: "plc4x"},
	{Label: "WinCC", Href: "/c/wincc", Key: "wincc"},
	{Label: "Sparkplug", Href: "/c/sparkplug", Key: "sparkplug"},
}

func (s *Server) handleListPage(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	poller := s.pollers[kind]
	var rows [][]string
	for _, e := range poller.Rows() {
		enabled := "disabled"
		if e.Enabled {
			enabled = "enabled"
		}
		rows = append(rows, []string{e.Name, e.Namespace, e.NodeID, enabled})
	}
	var buf bytes.Buffer
	if err := view.RenderTable(&buf, view.Table{
		Columns: []string{"Name", "Namespace", "Node", "State"},
		Rows:    rows,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.RenderPage(w, view.Page{
		Title:  string(kind),
		Active: string(kind),
		Nav:    pageNav,
		Body:   template.HTML(buf.String()),
	}); err != nil {
		s.log.Debug("page render failed", "error", err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	poller := s.pollers[kind]
	s.writeJSON(w, http.StatusOK, map[string]any{
		"rows":        poller.Rows(),
		"lastRefresh": poller.LastRefresh(),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	e, err := s.api.Get(r.Context(), kind, r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

// save runs one editor pass: load, replace the form with the request
// payload, save. Validation happens before any mutation reaches the
// broker, and the response body is the post-save server state.
func (s *Server) save(ctx context.Context, kind entity.Kind, name string, payload *entity.Entity) (*entity.Entity, error) {
	ctl := editor.New(s.api, kind, name)
	defer ctl.Teardown()
	if err := ctl.Load(ctx); err != nil {
		return nil, err
	}
	if err := ctl.Edit(func(e *entity.Entity) { *e = *payload.Clone() }); err != nil {
		return nil, err
	}
	if err := ctl.Save(ctx); err != nil {
		return nil, err
	}
	s.pollers[kind].Refresh()
	return ctl.Durable(), nil
}

func (s *Server) decodeEntity(r *http.Request) (*entity.Entity, error) {
	var e entity.Entity
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		return nil, &entity.ValidationError{Field: "body", Message: "request body must be a JSON entity"}
	}
	return &e, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	payload, err := s.decodeEntity(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	saved, err := s.save(r.Context(), kind, "", payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	payload, err := s.decodeEntity(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	saved, err := s.save(r.Context(), kind, r.PathValue("name"), payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := s.api.Delete(r.Context(), kind, r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	s.pollers[kind].Refresh()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &entity.ValidationError{Field: "body", Message: "expected {\"enabled\": bool}"})
		return
	}
	if err := s.api.Toggle(r.Context(), kind, r.PathValue("name"), body.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	s.pollers[kind].Refresh()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddressAdd(w http.ResponseWriter, r *http.Request) {
	s.addressOp(w, r, func(ctx context.Context, kind entity.Kind, name string, a entity.Address) error {
		if err := entity.ValidateAddress(&a); err != nil {
			return err
		}
		return s.api.AddAddress(ctx, kind, name, a)
	})
}

func (s *Server) handleAddressUpdate(w http.ResponseWriter, r *http.Request) {
	s.addressOp(w, r, func(ctx context.Context, kind entity.Kind, name string, a entity.Address) error {
		a.Address = r.PathValue("address")
		if err := entity.ValidateAddress(&a); err != nil {
			return err
		}
		return s.api.UpdateAddress(ctx, kind, name, a)
	})
}

func (s *Server) handleAddressDelete(w http.ResponseWriter, r *http.Request) {
	s.addressOp(w, r, func(ctx context.Context, kind entity.Kind, name string, _ entity.Address) error {
		return s.api.DeleteAddress(ctx, kind, name, r.PathValue("address"))
	})
}

func (s *Server) addressOp(w http.ResponseWriter, r *http.Request, op func(context.Context, entity.Kind, string, entity.Address) error) {
	kind, err := s.kind(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	var a entity.Address
	if r.Method != http.MethodDelete {
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			s.writeError(w, &entity.ValidationError{Field: "body", Message: "request body must be a JSON address"})
			return
		}
	}
	if err := op(r.Context(), kind, r.PathValue("name"), a); err != nil {
		s.writeError(w, err)
		return
	}
	s.pollers[kind].Refresh()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	rows, err := s.api.List(r.Context(), kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	name, data, err := transfer.Export(string(kind)+"s", rows, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	filename := r.URL.Query().Get("filename")
	data, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		s.writeError(w, err)
		return
	}
	items, err := transfer.ParseArchive(filename, data)
	if err != nil {
		s.writeError(w, &entity.ValidationError{Field: "archive", Message: err.Error()})
		return
	}
	res := transfer.Import(r.Context(), items, func(ctx context.Context, raw json.RawMessage) error {
		var e entity.Entity
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		return s.api.Create(ctx, kind, &e)
	})
	s.pollers[kind].Refresh()
	errs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, e.Error())
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"imported": res.Imported,
		"failed":   res.Failed,
		"errors":   errs,
	})
}

func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := s.api.ListCertificates(r.Context(), r.URL.Query().Get("server"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	trusted := make([]entity.Certificate, 0)
	rejected := make([]entity.Certificate, 0)
	for _, c := range certs {
		if c.Trusted {
			trusted = append(trusted, c)
		} else {
			rejected = append(rejected, c)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"trusted":  trusted,
		"rejected": rejected,
	})
}

func (s *Server) handleCertificateTrust(w http.ResponseWriter, r *http.Request) {
	server := r.URL.Query().Get("server")
	if err := s.api.TrustCertificate(r.Context(), server, r.PathValue("fingerprint")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCertificateDelete(w http.ResponseWriter, r *http.Request) {
	server := r.URL.Query().Get("server")
	if err := s.api.DeleteCertificate(r.Context(), server, r.PathValue("fingerprint")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProbeMQTT(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BrokerURL string `json:"brokerUrl"`
		ClientID  string `json:"clientId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.BrokerURL == "" {
		s.writeError(w, &entity.ValidationError{Field: "brokerUrl", Message: "broker URL is required"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.prober.MQTT(r.Context(), body.BrokerURL, body.ClientID))
}

func (s *Server) handleProbePostgres(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JDBCURL  string `json:"jdbcUrl"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.JDBCURL == "" {
		s.writeError(w, &entity.ValidationError{Field: "jdbcUrl", Message: "JDBC URL is required"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.prober.Postgres(r.Context(), body.JDBCURL, body.Username, body.Password))
}

func (s *Server) handleScriptCheck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Script string `json:"script"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &entity.ValidationError{Field: "body", Message: "expected {\"script\": string}"})
		return
	}
	if err := overlay.CheckSyntax(body.Script); err != nil {
		var se *overlay.SyntaxError
		resp := map[string]any{"ok": false, "error": err.Error()}
		if errors.As(err, &se) {
			resp["line"] = se.Line
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleScriptAssist(w http.ResponseWriter, r *http.Request) {
	if s.ai == nil {
		s.writeError(w, &entity.ValidationError{Field: "assist", Message: "no assistant endpoint configured"})
		return
	}
	var body struct {
		Script      string `json:"script"`
		Selection   string `json:"selection"`
		Instruction string `json:"instruction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &entity.ValidationError{Field: "body", Message: "request body must be a JSON assist request"})
		return
	}
	// The script editor is a singleton surface; requests share its
	// overlay slot, so they run one at a time.
	s.assistMu.Lock()
	defer s.assistMu.Unlock()
	inst, _ := s.overlays.Open(overlay.NewScriptEditor("transform", body.Script, nil, s.ai, nil))
	ed := inst.(*overlay.ScriptEditor)
	ed.SetScript(body.Script)
	defer s.overlays.Close(overlay.ScriptEditorType)
	explanation, err := ed.Assist(r.Context(), body.Instruction, body.Selection)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"script":      ed.Script(),
		"explanation": explanation,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	s.hub.Register(conn, r.URL.Query().Get("collection"))
	// Read pump: the feed is one-way, reads only detect disconnects.
	go func() {
		defer s.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
