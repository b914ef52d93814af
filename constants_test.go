package delivery

import "time"

// testWait bounds every wait on asynchronous transports.
const testWait = 3 * time.Second

// Scenario payloads.
var (
	testTextContent = []byte("hi")
	testPNGBytes    = []byte{0x89, 0x50, 0x4E}
)
