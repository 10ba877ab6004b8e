// Package scheduler fires a fixed batch of sessions on every tick and drains
// them when the run ends.
//
// The scheduler has two states. While Running, each tick boundary samples
// ConcurrencyPerTick payloads and launches one session per payload without
// waiting for earlier sessions. When MaxConcurrentSessions is set, a launch
// that would exceed it is reported to the sink as a backpressure outcome
// instead. Stop, context cancellation, a tick limit or a duration limit move
// the scheduler to Stopped; from then on nothing new is launched and
// in-flight sessions get a grace period before they are cancelled.
package scheduler
