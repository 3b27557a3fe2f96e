// Package rpc implements the line-based JSON-RPC framing spoken between the
// daemon and its channel plugin subprocesses.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Request calls one method on the peer. IDs are unique per RPC instance.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     uint64          `json:"id"`
}

// Response answers the Request with the same ID. A non-empty Error describes
// why the method failed, which is non-fatal for the connection itself.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	ID     uint64          `json:"id"`
}

// Error is a fatal transport error. Once it occurred, the RPC instance is
// unusable and the plugin process behind it has to be restarted.
type Error struct {
	cause error
}

func (err *Error) Error() string {
	return "RPC error: " + err.cause.Error()
}

func (err *Error) Unwrap() error {
	return err.cause
}

// RPC multiplexes calls over one reader/writer pair, matching responses to
// pending requests by ID.
type RPC struct {
	writer    io.Closer // use encoder for writing instead
	encoder   *json.Encoder
	encoderMu sync.Mutex

	decoder *json.Decoder
	logger  *zap.SugaredLogger

	pendingRequests map[uint64]chan Response
	lastRequestID   uint64
	requestsMu      sync.Mutex

	done chan struct{} // closed when processResponses has returned

	errChannel chan struct{} // never transports a value, only closed through setErr()
	err        *Error        // only set via setErr() when a fatal error has occurred
	errMu      sync.Mutex
}

// NewRPC creates an RPC instance and starts reading responses from reader.
func NewRPC(writer io.WriteCloser, reader io.Reader, logger *zap.SugaredLogger) *RPC {
	rpc := &RPC{
		writer:          writer,
		encoder:         json.NewEncoder(writer),
		decoder:         json.NewDecoder(reader),
		pendingRequests: map[uint64]chan Response{},
		logger:          logger,
		done:            make(chan struct{}),
		errChannel:      make(chan struct{}),
	}

	go rpc.processResponses()

	return rpc
}

// Call sends a request with the given parameters and awaits the response.
//
// Two different kinds of error can be returned:
//   - *Error: the connection failed, future calls on this instance won't work.
//   - a plain error carrying Response.Error: the method failed, the
//     connection stays usable.
func (r *RPC) Call(method string, params json.RawMessage) (json.RawMessage, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}

	promise := make(chan Response, 1)

	r.requestsMu.Lock()
	r.lastRequestID++
	newID := r.lastRequestID
	r.pendingRequests[newID] = promise
	r.requestsMu.Unlock()

	r.encoderMu.Lock()
	err := r.encoder.Encode(Request{Method: method, Params: params, ID: newID})
	r.encoderMu.Unlock()
	if err != nil {
		r.setErr(fmt.Errorf("cannot write request: %w", err))

		return nil, r.Err()
	}

	select {
	case response := <-promise:
		if response.Error != "" {
			return nil, errors.New(response.Error)
		}

		return response.Result, nil

	case <-r.errChannel:
		return nil, r.Err()
	}
}

// Err returns the fatal error of this instance, if any.
func (r *RPC) Err() error {
	select {
	case <-r.errChannel:
		return r.err
	default:
		return nil
	}
}

// Done returns a channel that is closed once the response reader has
// finished, either due to an error or because the peer closed its end.
func (r *RPC) Done() <-chan struct{} {
	return r.done
}

// Close closes the writer, asking the peer to shut down.
func (r *RPC) Close() error {
	r.encoderMu.Lock()
	defer r.encoderMu.Unlock()

	return r.writer.Close()
}

func (r *RPC) setErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	if r.err == nil {
		r.err = &Error{cause: err}
		close(r.errChannel)
	}
}

// processResponses delivers responses to their pending request's promise.
// On any decode error all pending requests are dropped.
func (r *RPC) processResponses() {
	defer func() {
		r.requestsMu.Lock()
		if pending := len(r.pendingRequests); pending > 0 {
			r.logger.Infof("Dropping %d pending request(s)", pending)
		}
		r.pendingRequests = nil
		r.requestsMu.Unlock()

		close(r.done)
	}()

	for r.Err() == nil {
		var response Response
		if err := r.decoder.Decode(&response); err != nil {
			if !errors.Is(err, io.EOF) { // EOF is a regular plugin shutdown
				r.setErr(fmt.Errorf("cannot decode response: %w", err))
			}

			return
		}

		r.requestsMu.Lock()
		promise := r.pendingRequests[response.ID]
		delete(r.pendingRequests, response.ID)
		r.requestsMu.Unlock()

		if promise != nil {
			promise <- response
		} else {
			r.logger.Warnw("Ignoring response for unknown request ID", zap.Uint64("id", response.ID))
		}
	}
}
