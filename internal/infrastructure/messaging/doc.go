// Package messaging connects the reservation engine to Kafka: it consumes
// finalized orders and forwards the engine's own domain events.
package messaging
