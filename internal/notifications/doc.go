// Package notifications pushes operator-facing events to ntfy. With no topic
// configured every notification is a silent no-op.
package notifications
