package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned synchronously by every send while no
	// transport handle is live.
	ErrNotConnected = errors.New("websocket is not connected")

	// ErrAlreadyConnected guards against holding two transport handles.
	ErrAlreadyConnected = errors.New("websocket is already connected")

	// ErrConnectAborted is wrapped by the ConnectionError of a connect that
	// was cancelled by Disconnect before the socket opened.
	ErrConnectAborted = errors.New("connect aborted by disconnect")
)

// ConfigError rejects a connect attempted without a session configuration.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid config sent to Connect: " + e.Reason
}

// ConnectionError reports a transport failure before the open and handshake
// sequence completed.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not connect to %q: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ParseError reports an inbound binary frame that is not valid JSON for the
// server message grammar.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing server message: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
