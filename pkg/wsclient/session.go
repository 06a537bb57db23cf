package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/internal/metrics"
	"github.com/foxzool/open-lark-sub013/pkg/frame"
)

const (
	frameTypeProtocolPing = "protocol_ping"
	frameTypeMalformed    = "malformed"
)

type readResult struct {
	msgType int
	data    []byte
	err     error
}

// session owns one WebSocket connection. A single goroutine (run) performs
// every data write, drives the timers and owns the state; a reader
// goroutine feeds it inbound messages.
type session struct {
	id       string
	endpoint *Endpoint
	conn     *websocket.Conn
	config   *configHolder
	inbound  *Queue[WsEvent]
	outbound *Queue[*frame.Frame]
	state    *stateMachine
	opts     *options
	log      zerolog.Logger

	lastActivity atomic.Int64
}

// dialSession opens the socket. On failure the session is already Errored
// and the returned error is a *SessionError with CauseConnect.
func dialSession(ctx context.Context, ep *Endpoint, cfg *configHolder, inbound *Queue[WsEvent], outbound *Queue[*frame.Frame], opts *options) (*session, error) {
	s := &session{
		id:       uuid.New().String(),
		endpoint: ep,
		config:   cfg,
		inbound:  inbound,
		outbound: outbound,
		state:    newStateMachine(),
		opts:     opts,
	}
	s.log = logger.WithConnection(s.id).With().
		Int32("service_id", ep.ServiceID).
		Str("device_id", ep.DeviceID).
		Logger()

	conn, resp, err := opts.newDialer().DialContext(ctx, ep.URL, nil)
	if err != nil {
		serr := &SessionError{Cause: CauseConnect, Err: fmt.Errorf("websocket dial failed: %w", err)}
		if resp != nil {
			serr.Code = resp.StatusCode
			serr.Reason = resp.Header.Get("Handshake-Msg")
		}
		_ = s.state.Transition(StateErrored)
		metrics.RecordSessionError(serr.Cause.String())
		s.log.Error().Err(serr).Msg("connect failed")
		return nil, serr
	}

	s.conn = conn
	s.touch()
	conn.SetPingHandler(s.onProtocolPing)
	conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	if err := s.state.Transition(StateOpen); err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.log.Info().Msg("session open")
	return s, nil
}

// ID returns the connection id used in logs.
func (s *session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *session) State() State {
	return s.state.Current()
}

// LastActivity returns when the last inbound message arrived.
func (s *session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// run services the connection until it fails, the outbound queue is closed
// and drained, or ctx is done. It returns nil on a graceful close.
func (s *session) run(ctx context.Context) error {
	reads := make(chan readResult)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go s.readLoop(reads, stop, &wg)
	defer func() {
		close(stop)
		_ = s.conn.Close()
		wg.Wait()
	}()

	period := s.config.Load().PingPeriod()
	// First ping goes out immediately so the server replies with its config.
	heartbeat := time.NewTimer(0)
	defer heartbeat.Stop()
	liveness := time.NewTicker(s.opts.livenessInterval)
	defer liveness.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown("context done")

		case r := <-reads:
			if r.err != nil {
				return s.fail(readError(r.err))
			}
			next, err := s.handleMessage(r.msgType, r.data, period)
			if err != nil {
				return s.fail(err)
			}
			if next != period {
				period = next
				heartbeat.Reset(period)
				s.log.Info().Dur("ping_interval", period).Msg("heartbeat re-armed")
			}

		case <-s.outbound.Signal():
			if err := s.flush(); err != nil {
				return s.fail(err)
			}
			if s.outbound.Closed() && s.outbound.Len() == 0 {
				return s.shutdown("outbound closed")
			}

		case <-heartbeat.C:
			if err := s.write(frame.NewPing(s.endpoint.ServiceID)); err != nil {
				return s.fail(err)
			}
			heartbeat.Reset(period)

		case now := <-liveness.C:
			idle := now.Sub(s.LastActivity())
			if idle > s.opts.heartbeatTimeout {
				return s.fail(&SessionError{
					Cause: CauseHeartbeatTimeout,
					Err:   fmt.Errorf("%w (idle %s)", ErrHeartbeatTimeout, idle.Round(time.Millisecond)),
				})
			}
		}
	}
}

func (s *session) readLoop(reads chan<- readResult, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err == nil {
			s.touch()
		}

		select {
		case reads <- readResult{msgType: mt, data: data, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// onProtocolPing answers a WebSocket ping on the reader goroutine.
// WriteControl may run concurrently with the session's data writes.
func (s *session) onProtocolPing(appData string) error {
	s.touch()
	metrics.RecordFrameReceived(frameTypeProtocolPing)

	err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(s.opts.writeTimeout))
	if err == websocket.ErrCloseSent {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil
	}
	return err
}

// handleMessage processes one inbound message and returns the heartbeat
// period to use from now on.
func (s *session) handleMessage(wsType int, data []byte, period time.Duration) (time.Duration, error) {
	if wsType != websocket.BinaryMessage {
		s.log.Debug().Int("ws_message_type", wsType).Msg("ignoring non-binary message")
		return period, nil
	}

	f, err := frame.Decode(data)
	if err != nil {
		metrics.RecordFrameReceived(frameTypeMalformed)
		if s.opts.skipMalformed {
			s.log.Warn().Err(err).Int("size", len(data)).Msg("skipping malformed frame")
			return period, nil
		}
		return period, &SessionError{Cause: CauseMalformedFrame, Err: err}
	}

	msgType := f.Headers.Type()
	metrics.RecordFrameReceived(msgType)

	switch {
	case f.IsControl():
		return s.handleControl(f, period), nil
	case f.IsData():
		if err := s.inbound.Push(WsEvent{Frame: f}); err != nil {
			s.log.Debug().Str("message_id", f.Headers.MessageID()).Msg("inbound closed, frame dropped")
		}
	default:
		s.log.Debug().Int32("method", f.Method).Str("message_type", msgType).Msg("ignoring frame with unknown method")
	}
	return period, nil
}

func (s *session) handleControl(f *frame.Frame, period time.Duration) time.Duration {
	msgType := f.Headers.Type()
	if msgType != frame.TypePong {
		s.log.Debug().Str("message_type", msgType).Msg("ignoring control frame")
		return period
	}
	if len(f.Payload) == 0 {
		return period
	}

	prev, next, err := s.config.Merge(f.Payload)
	if err != nil {
		s.log.Warn().Err(err).Msg("invalid client config in pong")
		return period
	}
	if prev != next {
		s.log.Info().
			Int("reconnect_count", next.ReconnectCount).
			Int("reconnect_interval", next.ReconnectInterval).
			Int("reconnect_nonce", next.ReconnectNonce).
			Int("ping_interval", next.PingInterval).
			Msg("client config updated")
	}
	if prev.PingInterval != next.PingInterval {
		return next.PingPeriod()
	}
	return period
}

func (s *session) flush() error {
	for {
		f, ok := s.outbound.TryPop()
		if !ok {
			return nil
		}
		if err := s.write(f); err != nil {
			return err
		}
	}
}

func (s *session) write(f *frame.Frame) error {
	data, err := frame.Encode(f)
	if err != nil {
		s.log.Error().Err(err).Msg("dropping unencodable frame")
		return nil
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.writeTimeout)); err != nil {
		return &SessionError{Cause: CauseWrite, Err: err}
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return &SessionError{Cause: CauseWrite, Err: err}
	}
	metrics.RecordFrameSent(f.Headers.Type())
	return nil
}

// fail moves the session to Errored and hands err to the dispatcher as the
// last inbound event.
func (s *session) fail(err error) error {
	var serr *SessionError
	if !errors.As(err, &serr) {
		serr = &SessionError{Cause: CauseRead, Err: err}
	}

	if terr := s.state.Transition(StateErrored); terr != nil {
		s.log.Warn().Err(terr).Str("state", s.state.Current().String()).Msg("unexpected state on failure")
	}
	metrics.RecordSessionError(serr.Cause.String())
	s.log.Error().Err(serr).Str("cause", serr.Cause.String()).Msg("session terminated")

	_ = s.inbound.Push(WsEvent{Err: serr})
	s.inbound.Close()
	return serr
}

// shutdown flushes pending responses and performs the closing handshake.
func (s *session) shutdown(reason string) error {
	if err := s.state.Transition(StateClosing); err != nil {
		return err
	}
	s.log.Info().Str("reason", reason).Msg("session closing")

	if err := s.flush(); err != nil {
		s.log.Warn().Err(err).Msg("failed to flush outbound frames on close")
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.writeTimeout)); err != nil {
		s.log.Debug().Err(err).Msg("close frame not sent")
	}

	_ = s.state.Transition(StateClosed)
	s.inbound.Close()
	s.log.Info().Msg("session closed")
	return nil
}

func readError(err error) *SessionError {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &SessionError{Cause: CauseRemoteClosed, Code: ce.Code, Reason: ce.Text, Err: ErrRemoteClosed}
	}
	return &SessionError{Cause: CauseRead, Err: err}
}
