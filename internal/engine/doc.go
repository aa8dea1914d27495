// Package engine provides the race session engine. It owns the race state
// machine, car-number allocation, lap recording and standings aggregation,
// serializing every write per race and publishing the resulting state to the
// broadcast gateway. Race length is enforced by a per-race timer built on
// context deadlines.
package engine
