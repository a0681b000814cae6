package eventstream

import "errors"

// ErrNilTurnEvent indicates a nil turn event payload was provided to a publisher.
var ErrNilTurnEvent = errors.New("nil turn event")

// ErrNoBrokers is returned when a broker-backed publisher is configured
// without any broker address.
var ErrNoBrokers = errors.New("no event stream brokers configured")
