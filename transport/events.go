package transport

// Event names exchanged between peers. Both ends of a connection emit and
// handle the same set.
const (
	// EventConnecting starts the handshake. No payload.
	EventConnecting = "delivery.connecting"
	// EventConnect confirms the handshake. No payload.
	EventConnect = "delivery.connect"
	// EventSendStart offers a file. Payload: file.Batch.
	EventSendStart = "send.start"
	// EventSendSuccess acknowledges a received file. Payload: uid string.
	EventSendSuccess = "send.success"
)
