package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bbernstein/lacylights-dmx/internal/database/models"
	"github.com/bbernstein/lacylights-dmx/internal/services/command"
	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/internal/services/patch"
	"github.com/bbernstein/lacylights-dmx/internal/services/pubsub"
)

// maxBodyBytes bounds request bodies; commands are a few hundred bytes.
const maxBodyBytes = 64 << 10

// FixtureInfo describes a registered fixture.
type FixtureInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Address int    `json:"address"`
	Length  int    `json:"length"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	dmx.Stats
	State string `json:"state"`
	Idle  bool   `json:"idle"`
}

// IdleShutdown is the body of GET and PUT /settings/idle-shutdown.
type IdleShutdown struct {
	Duration string  `json:"duration"`
	Seconds  float64 `json:"seconds"`
}

var errNoBus = errors.New("event bus not configured")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// commandStatus maps command errors to HTTP statuses.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, command.ErrUnknownFixture):
		return http.StatusNotFound
	case errors.Is(err, command.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, command.ErrMalformed), errors.Is(err, command.ErrUnknownOp):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func readCommand(r *http.Request) (command.Command, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return command.Command{}, fmt.Errorf("%w: %v", command.ErrMalformed, err)
	}
	return command.Decode(body)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.deps.Version,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"engine":    s.deps.Engine.State().String(),
	})
}

func (s *Server) listFixtures(w http.ResponseWriter, _ *http.Request) {
	regs := s.deps.Engine.Registrations()
	out := make([]FixtureInfo, 0, len(regs))
	for _, r := range regs {
		out = append(out, FixtureInfo{
			Name:    r.Name,
			Kind:    r.Unit.Kind().String(),
			Address: r.Slot.Address,
			Length:  r.Slot.Length,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) fixtureCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cmd, err := readCommand(r)
	if err != nil {
		writeError(w, commandStatus(err), err)
		return
	}
	if err := s.deps.Commands.Dispatch(name, cmd); err != nil {
		s.log.WithError(err).WithField("fixture", name).Debug("command rejected")
		writeError(w, commandStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, command.Applied{Fixture: name, Command: cmd})
}

func (s *Server) broadcastCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := readCommand(r)
	if err != nil {
		writeError(w, commandStatus(err), err)
		return
	}
	names, err := s.deps.Commands.Broadcast(cmd)
	if err != nil {
		writeError(w, commandStatus(err), err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"op": cmd.Op, "fixtures": names})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	resp := StatsResponse{
		Stats: s.deps.Engine.Stats(),
		State: s.deps.Engine.State().String(),
	}
	if s.deps.Idle != nil {
		resp.Idle = s.deps.Idle.Idle()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) universe(w http.ResponseWriter, _ *http.Request) {
	buf := make([]byte, dmx.UniverseSize)
	n := s.deps.Engine.Snapshot(buf)
	// ints, not base64
	channels := make([]int, n)
	for i, b := range buf[:n] {
		channels[i] = int(b)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"channels": channels})
}

func (s *Server) startEngine(w http.ResponseWriter, _ *http.Request) {
	if err := s.deps.Engine.Start(); err != nil {
		s.log.WithError(err).Error("engine start failed")
		status := http.StatusInternalServerError
		if errors.Is(err, dmx.ErrShutdown) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	s.engineState(w)
}

func (s *Server) stopEngine(w http.ResponseWriter, _ *http.Request) {
	if err := s.deps.Engine.Stop(); err != nil {
		s.log.WithError(err).Error("engine stop failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.engineState(w)
}

func (s *Server) engineState(w http.ResponseWriter) {
	state := s.deps.Engine.State()
	if s.deps.Bus != nil {
		s.deps.Bus.PublishAll(pubsub.TopicEngineState, state)
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": state.String()})
}

func idleShutdown(d time.Duration) IdleShutdown {
	return IdleShutdown{Duration: d.String(), Seconds: d.Seconds()}
}

func (s *Server) getIdleShutdown(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Idle == nil {
		writeError(w, http.StatusNotFound, errors.New("idle watch not configured"))
		return
	}
	writeJSON(w, http.StatusOK, idleShutdown(s.deps.Idle.Duration()))
}

// putIdleShutdown accepts {"duration":"5m"} or {"seconds":300}. Zero disables.
func (s *Server) putIdleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.deps.Idle == nil {
		writeError(w, http.StatusNotFound, errors.New("idle watch not configured"))
		return
	}

	var req IdleShutdown
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	d := time.Duration(req.Seconds * float64(time.Second))
	if req.Duration != "" {
		parsed, err := time.ParseDuration(req.Duration)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid duration: %w", err))
			return
		}
		d = parsed
	}
	if d < 0 {
		writeError(w, http.StatusBadRequest, errors.New("duration must not be negative"))
		return
	}

	if s.deps.Settings != nil {
		if _, err := s.deps.Settings.Upsert(r.Context(), models.SettingIdleShutdown, d.String()); err != nil {
			s.log.WithError(err).Error("failed to save idle shutdown")
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.deps.Idle.SetDuration(d)
	s.log.WithField("duration", d).Info("⏱️  Idle shutdown changed")
	writeJSON(w, http.StatusOK, idleShutdown(s.deps.Idle.Duration()))
}

func (s *Server) exportPatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Patch == nil {
		writeError(w, http.StatusNotFound, errors.New("patch store not configured"))
		return
	}
	f, err := patch.Export(r.Context(), s.deps.Patch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/toml")
	if err := patch.Encode(w, f); err != nil {
		s.log.WithError(err).Error("failed to encode patch")
	}
}

func (s *Server) networkInterfaces(w http.ResponseWriter, _ *http.Request) {
	ifaces, err := s.deps.Interfaces()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ifaces)
}

func (s *Server) serialPorts(w http.ResponseWriter, _ *http.Request) {
	ports, err := s.deps.SerialPorts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	writeJSON(w, http.StatusOK, ports)
}
