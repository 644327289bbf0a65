package broker

import "fmt"

// BindError is returned by ListenAndServe when the listening socket cannot be
// opened. It is the only broker error surfaced to the embedder; every
// per-connection failure is logged and handled internally.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("broker: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }
