// Package bus implements the in-process event channel connecting stores to
// their observers.
//
// A Bus fans each published event out to every subscriber's own bounded
// queue, so a stalled observer can never block a publisher; it sheds that
// observer's oldest events instead. Delivery is best-effort and exists only
// while the process is alive. Subscribers see events in publish order.
package bus
