package delivery

// Topics published on a session's bus. Applications subscribe with On or
// the typed On* helpers; only the session publishes.
const (
	// TopicConnect fires once the handshake completes. Payload: *Session.
	TopicConnect = "delivery.connect"
	// TopicReceiveStart fires when the peer offers a file. Payload: uid string.
	TopicReceiveStart = "receive.start"
	// TopicReceiveSuccess fires when an offered file is decoded. Payload: *file.Packet.
	TopicReceiveSuccess = "receive.success"
	// TopicReceiveError fires when an offered file cannot be decoded. Payload: *TransferError.
	TopicReceiveError = "receive.error"
	// TopicSendStart fires just before a file is handed to the transport. Payload: *file.Packet.
	TopicSendStart = "send.start"
	// TopicSendSuccess fires when the peer acknowledges a file. Payload: uid string.
	TopicSendSuccess = "send.success"

	// topicFileLoad is internal: an outbound packet finished encoding.
	topicFileLoad = "file.load"
)

var publicTopics = map[string]bool{
	TopicConnect:        true,
	TopicReceiveStart:   true,
	TopicReceiveSuccess: true,
	TopicReceiveError:   true,
	TopicSendStart:      true,
	TopicSendSuccess:    true,
}
