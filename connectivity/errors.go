package connectivity

import "fmt"

// ErrConnectorNotFound is returned when Call targets a connector with no
// route and no local handler.
type ErrConnectorNotFound struct {
	Connector string
}

func (e *ErrConnectorNotFound) Error() string {
	return fmt.Sprintf("connectivity: connector not routable: %s", e.Connector)
}

// ErrNoFactory is returned during Reload when a route's strategy has no
// registered TransportFactory.
type ErrNoFactory struct {
	Connector string
	Strategy  string
}

func (e *ErrNoFactory) Error() string {
	return fmt.Sprintf("connectivity: no transport factory for strategy %q (connector %s)", e.Strategy, e.Connector)
}

// ErrFactoryFailed is returned when a TransportFactory returns an error
// while building a handler for a route.
type ErrFactoryFailed struct {
	Connector string
	Strategy  string
	Endpoint  string
	Cause     error
}

func (e *ErrFactoryFailed) Error() string {
	return fmt.Sprintf("connectivity: factory %q failed for connector %s (endpoint %s): %v",
		e.Strategy, e.Connector, e.Endpoint, e.Cause)
}

func (e *ErrFactoryFailed) Unwrap() error { return e.Cause }

// ErrCircuitOpen is returned when the circuit breaker for a connector is
// open, rejecting the call without attempting the remote handler.
type ErrCircuitOpen struct {
	Connector string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("connectivity: circuit open: %s", e.Connector)
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return "connectivity: handler panicked"
}
