// Package config loads settings for the delivery server and client.
//
// A configuration is built in three layers: the built-in defaults from
// Default, an optional TOML file, and DELIVERY_* environment variables.
// Environment values that fail to parse or fall outside their bounds are
// logged with a warning and ignored, so a bad variable never prevents
// startup.
//
// # Environment
//
//   - DELIVERY_LISTEN_ADDR: server listen address
//   - DELIVERY_PATH: WebSocket route
//   - DELIVERY_SERVER_URL: client target URL
//   - DELIVERY_MAX_FILE_SIZE: bytes, within the limits package bounds
//   - DELIVERY_RECEIVE_RETENTION: received packets kept per session
//   - DELIVERY_OUTPUT_DIR: directory for received files
//   - DELIVERY_HANDSHAKE_TIMEOUT, DELIVERY_ACK_TIMEOUT: "5s" or milliseconds
//   - DELIVERY_LOG_LEVEL: logrus level name
//   - DELIVERY_LOG_FORMAT: "text" or "json"
//
// # File
//
//	listen_addr = ":9000"
//	path = "/delivery"
//	max_file_size = 1048576
//	handshake_timeout = "5s"
//	log_format = "json"
package config
