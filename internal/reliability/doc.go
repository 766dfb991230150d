// Package reliability provides the connect retry policies offered to the
// hosting pipeline. Retry here covers channel establishment only; per-call
// retry and hedging are transport-level concerns configured once at connect.
package reliability
