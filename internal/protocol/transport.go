package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Listener receives raw notifications. It may be invoked from a transport-owned goroutine.
type Listener func(ch Channel, data []byte)

// Transport is the BLE stack the engine runs on. Discovery and connection
// management happen before a Transport is handed to the engine.
type Transport interface {
	// Write sends data to the channel; requireAck selects write-with-response.
	Write(ch Channel, data []byte, requireAck bool) error
	// Read reads the current characteristic value.
	Read(ch Channel) ([]byte, error)
	// EnableNotifications writes 0x0100 to the channel's CCCD.
	EnableNotifications(ch Channel) error
	// DisableNotifications writes 0x0000 to the channel's CCCD.
	DisableNotifications(ch Channel) error
	// RegisterListener installs the single notification listener, replacing any previous one.
	RegisterListener(fn Listener)
	// WaitForEvents blocks until at least one notification was delivered or timeout elapsed.
	WaitForEvents(timeout time.Duration) bool
	// Disconnected is closed when the link drops.
	Disconnected() <-chan struct{}
	// Close releases the link.
	Close() error
}

// KeySize is the length of the authentication key in bytes
const KeySize = 16

// Key is the 128-bit authentication key. It never prints its value.
type Key [KeySize]byte

// ParseKey decodes a 32 hex character key, tolerating whitespace and a 0x prefix.
func ParseKey(s string) (Key, error) {
	var k Key
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return k, fmt.Errorf("invalid key: %w", err)
	}
	if len(raw) != KeySize {
		return k, fmt.Errorf("invalid key: need %d bytes, got %d", KeySize, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

func (k Key) String() string {
	return "<redacted>"
}

// Format keeps %x and %v from leaking the key
func (k Key) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte("<redacted>"))
}

// Wipe zeroes the key in place
func (k *Key) Wipe() {
	for i := range k {
		k[i] = 0
	}
}
