// Package bus implements the agent's MQTT session: topic construction,
// wire message types, inbound routing, and outbound publishing with a
// bounded connection wait.
//
// The session owns the broker connection for the process lifetime.
// Publishers never see connection churn directly; they block (up to 30
// seconds) on a level-triggered connection gate and then publish on
// whatever connection currently exists.
package bus
