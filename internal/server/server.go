// Package server exposes a running strip over HTTP and a WebSocket control
// channel. All strip access goes through one mutex, since a strip only
// accepts one caller at a time.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/blinkt/model"
)

// Controller is the part of *blinkt.Strip the server drives.
type Controller interface {
	PixelCount() int
	Pixels() []model.Pixel
	SetPixel(i int, r, g, b uint8) error
	SetPixelRGBB(i int, r, g, b uint8, brightness float64) error
	SetAllPixels(r, g, b uint8)
	SetAllPixelsRGBB(r, g, b uint8, brightness float64)
	Clear()
	Show() error
	ClearOnRelease() bool
	SetClearOnRelease(v bool)
	Transport() string
	Close() error
}

const (
	OpSetPixel       = "set_pixel"
	OpSetAll         = "set_all"
	OpClear          = "clear"
	OpShow           = "show"
	OpGet            = "get"
	OpClearOnRelease = "clear_on_release"
)

// Request is one control message. Brightness is optional; without it only
// the colour changes. Show sends the buffer right after the change.
type Request struct {
	Op         string   `json:"op"`
	Index      int      `json:"index"`
	R          uint8    `json:"r"`
	G          uint8    `json:"g"`
	B          uint8    `json:"b"`
	Brightness *float64 `json:"brightness,omitempty"`
	Show       bool     `json:"show,omitempty"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

type PixelState struct {
	R          uint8   `json:"r"`
	G          uint8   `json:"g"`
	B          uint8   `json:"b"`
	Brightness float64 `json:"brightness"`
}

type Response struct {
	OK             bool         `json:"ok"`
	Error          string       `json:"error,omitempty"`
	Pixels         []PixelState `json:"pixels,omitempty"`
	ClearOnRelease *bool        `json:"clear_on_release,omitempty"`
}

type Server struct {
	mu       sync.Mutex
	strip    Controller
	frames   uint64
	start    time.Time
	upgrader websocket.Upgrader
}

func New(s Controller) *Server {
	return &Server{
		strip:    s,
		start:    time.Now(),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.HandleControlWS)
	mux.HandleFunc("/pixels", s.HandlePixels)
	mux.HandleFunc("/health", s.HandleHealth)
	return mux
}

// Close releases the strip under the server lock. Control connections
// outlive http.Server.Close and may still be calling Apply.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strip.Close()
}

// Refresh re-sends the current buffer. It fits runner.Looper.Step.
func (s *Server) Refresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.show()
}

func (s *Server) show() error {
	if err := s.strip.Show(); err != nil {
		return err
	}
	s.frames++
	return nil
}

// Apply runs one request against the strip.
func (s *Server) Apply(req Request) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch req.Op {
	case OpSetPixel:
		if req.Brightness != nil {
			err = s.strip.SetPixelRGBB(req.Index, req.R, req.G, req.B, *req.Brightness)
		} else {
			err = s.strip.SetPixel(req.Index, req.R, req.G, req.B)
		}
	case OpSetAll:
		if req.Brightness != nil {
			s.strip.SetAllPixelsRGBB(req.R, req.G, req.B, *req.Brightness)
		} else {
			s.strip.SetAllPixels(req.R, req.G, req.B)
		}
	case OpClear:
		s.strip.Clear()
	case OpShow:
		req.Show = true
	case OpGet:
		return Response{OK: true, Pixels: s.snapshot()}
	case OpClearOnRelease:
		if req.Enabled != nil {
			s.strip.SetClearOnRelease(*req.Enabled)
		}
		v := s.strip.ClearOnRelease()
		return Response{OK: true, ClearOnRelease: &v}
	default:
		err = fmt.Errorf("unknown op %q", req.Op)
	}
	if err == nil && req.Show {
		err = s.show()
	}
	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{OK: true}
}

func (s *Server) snapshot() []PixelState {
	ps := s.strip.Pixels()
	out := make([]PixelState, len(ps))
	for i, p := range ps {
		out[i] = PixelState{R: p.GetR(), G: p.GetG(), B: p.GetB(), Brightness: p.Brightness()}
	}
	return out
}

func (s *Server) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req Request
		resp := Response{}
		if err := json.Unmarshal(data, &req); err != nil {
			resp.Error = "bad request: " + err.Error()
		} else {
			resp = s.Apply(req)
		}
		if !resp.OK {
			log.Debug().Str("op", req.Op).Str("error", resp.Error).Msg("control request failed")
		}
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteJSON(resp); err != nil {
			log.Debug().Err(err).Msg("write control response")
			return
		}
	}
}

func (s *Server) HandlePixels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	resp := Response{OK: true, Pixels: s.snapshot()}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := map[string]any{
		"frames":    s.frames,
		"uptime_s":  time.Since(s.start).Seconds(),
		"pixels":    s.strip.PixelCount(),
		"transport": s.strip.Transport(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
