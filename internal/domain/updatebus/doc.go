// Package updatebus provides a registry of per-key bounded channels with
// non-blocking broadcast.
//
// Features:
//   - Generic over the payload type through the Channel[T] capability
//   - Re-registering a key closes and replaces the previous channel
//   - Broadcast never blocks: a full channel drops the update and logs it
//   - Payloads implementing Cleaner are scrubbed once per send
//
// One mutex guards both the registry and every broadcast, so each channel
// observes updates in send order. A burst of sends can briefly delay a
// registration; registration is rare next to update traffic.
//
// Example Usage:
//
//	bus := updatebus.New[Packet]("model", 100, logger)
//	ch := bus.RegisterChannel(clientID, &MyChannel{})
//	bus.SendUpdate(pk)
package updatebus
