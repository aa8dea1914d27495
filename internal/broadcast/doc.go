// Package broadcast fans race events out to connected terminals. The engine
// publishes named events; the Broker serves them to SSE streams and the Hub
// pushes them over websockets. Delivery is best effort: a client that falls
// behind loses events rather than slowing the publisher down, and every
// payload carries enough state for a display to re-render from scratch.
package broadcast
