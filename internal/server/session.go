package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"runtimeviewer/internal/aggregate"
	"runtimeviewer/internal/dataset"
)

const (
	sessionWriteTimeout = 5 * time.Second
	sessionReadLimit    = 64 << 10

	frameStatus = "status"
	frameView   = "view"
	frameDetail = "detail"
	frameError  = "error"
)

var sessionUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// viewRequest is one message from the client. Absent fields keep the
// viewer defaults.
type viewRequest struct {
	aggregate.Params
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	// Key switches the reply to a detail frame for that identity.
	Key string `json:"key,omitempty"`
}

type viewFrame struct {
	Type    string `json:"type"`
	Session string `json:"session"`

	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`

	Params *aggregate.Params        `json:"params,omitempty"`
	Total  int                      `json:"total,omitempty"`
	Offset int                      `json:"offset,omitempty"`
	Rows   []aggregate.Row          `json:"rows,omitempty"`
	Chart  *chartResponse           `json:"chart,omitempty"`
	Detail *aggregate.RuntimeDetail `json:"detail,omitempty"`
}

func (s *Server) handleViewWS(w http.ResponseWriter, r *http.Request) {
	conn, err := sessionUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveSession(conn)
}

// serveSession owns the connection: every write happens on this goroutine.
func (s *Server) serveSession(conn *websocket.Conn) {
	defer conn.Close()

	session := uuid.NewString()
	logger := s.logger.With(zap.String("session", session))
	logger.Debug("view session opened")
	defer logger.Debug("view session closed")

	first := s.statusFrame(session)
	if err := writeFrame(conn, first); err != nil {
		return
	}
	loaded := s.loader.Done()
	if first.State != dataset.StateLoading.String() {
		loaded = nil
	}

	requests := make(chan []byte)
	done := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(done)
		conn.SetReadLimit(sessionReadLimit)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case requests <- message:
			case <-quit:
				return
			}
		}
	}()

	for {
		select {
		case <-loaded:
			loaded = nil
			if err := writeFrame(conn, s.statusFrame(session)); err != nil {
				return
			}
		case message := <-requests:
			frame := s.answer(session, message)
			if frame.Type == frameError {
				logger.Debug("view request rejected", zap.String("error", frame.Error))
			}
			if err := writeFrame(conn, frame); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) statusFrame(session string) viewFrame {
	state, message := s.loader.State()
	return viewFrame{Type: frameStatus, Session: session, State: state.String(), Error: message}
}

func (s *Server) answer(session string, message []byte) viewFrame {
	req := viewRequest{Params: aggregate.DefaultParams(), Limit: defaultPageSize}
	if err := json.Unmarshal(message, &req); err != nil {
		return viewFrame{Type: frameError, Session: session, Error: "invalid request: " + err.Error()}
	}
	if _, err := aggregate.ParseTimeframe(strconv.Itoa(int(req.Timeframe))); err != nil {
		return viewFrame{Type: frameError, Session: session, Error: err.Error()}
	}

	view, err := s.view(req.Params)
	if err != nil {
		msg := err.Error()
		state, _ := s.loader.State()
		return viewFrame{Type: frameError, Session: session, State: state.String(), Error: msg}
	}
	params := view.Params

	if key := req.Key; key != "" {
		detail := view.Detail(key, s.links)
		return viewFrame{Type: frameDetail, Session: session, Params: &params, Detail: &detail}
	}

	limit := req.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	chart := buildChart(view)
	return viewFrame{
		Type:    frameView,
		Session: session,
		Params:  &params,
		Total:   view.Table.Len(),
		Offset:  offset,
		Rows:    view.Table.Window(offset, limit),
		Chart:   &chart,
	}
}

func writeFrame(conn *websocket.Conn, frame viewFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
	return conn.WriteJSON(frame)
}
