package codec

import (
	"fmt"

	"github.com/srg/bandlink/internal/protocol"
)

// RandomNumberSize is the length of the device challenge
const RandomNumberSize = 16

// AuthResponse classifies a notification on the auth channel
type AuthResponse int

const (
	AuthUnknown AuthResponse = iota
	// AuthKeyAccepted: 0x10 0x01 0x01, the device stored the key
	AuthKeyAccepted
	// AuthKeySendFailed: 0x10 0x01 0x04
	AuthKeySendFailed
	// AuthRandomNumber: 0x10 0x02 0x01 + 16 random bytes
	AuthRandomNumber
	// AuthRandomRequestFailed: 0x10 0x02 0x04
	AuthRandomRequestFailed
	// AuthSuccess: 0x10 0x03 0x01
	AuthSuccess
	// AuthEncryptionFailed: 0x10 0x03 0x04
	AuthEncryptionFailed
)

func (r AuthResponse) String() string {
	switch r {
	case AuthKeyAccepted:
		return "key_accepted"
	case AuthKeySendFailed:
		return "key_send_failed"
	case AuthRandomNumber:
		return "random_number"
	case AuthRandomRequestFailed:
		return "random_request_failed"
	case AuthSuccess:
		return "success"
	case AuthEncryptionFailed:
		return "encryption_failed"
	default:
		return "unknown"
	}
}

// DecodeAuthResponse classifies b; for AuthRandomNumber the 16-byte challenge is returned.
func DecodeAuthResponse(b []byte) (AuthResponse, []byte, error) {
	if len(b) < 3 {
		return AuthUnknown, nil, protocol.Malformed("auth response", 3, len(b))
	}
	if b[0] != ResponsePrefix {
		return AuthUnknown, nil, nil
	}

	switch [2]byte{b[1], b[2]} {
	case [2]byte{authCmdSendKey, StatusSuccess}:
		return AuthKeyAccepted, nil, nil
	case [2]byte{authCmdSendKey, StatusFailure}:
		return AuthKeySendFailed, nil, nil
	case [2]byte{authCmdRequestRandom, StatusSuccess}:
		if len(b) < 3+RandomNumberSize {
			return AuthUnknown, nil, protocol.Malformed("auth random number", 3+RandomNumberSize, len(b))
		}
		random := make([]byte, RandomNumberSize)
		copy(random, b[3:3+RandomNumberSize])
		return AuthRandomNumber, random, nil
	case [2]byte{authCmdRequestRandom, StatusFailure}:
		return AuthRandomRequestFailed, nil, nil
	case [2]byte{authCmdSendEncrypted, StatusSuccess}:
		return AuthSuccess, nil, nil
	case [2]byte{authCmdSendEncrypted, StatusFailure}:
		return AuthEncryptionFailed, nil, nil
	default:
		return AuthUnknown, nil, nil
	}
}

// EncodeSendKey builds 0x01 0x00 + key
func EncodeSendKey(key protocol.Key) []byte {
	out := make([]byte, 0, 2+protocol.KeySize)
	out = append(out, authCmdSendKey, authFlags)
	return append(out, key[:]...)
}

// EncodeEncryptedRandom builds 0x03 0x00 + ciphertext
func EncodeEncryptedRandom(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != RandomNumberSize {
		return nil, fmt.Errorf("encrypted challenge must be %d bytes, got %d", RandomNumberSize, len(ciphertext))
	}
	out := make([]byte, 0, 2+RandomNumberSize)
	out = append(out, authCmdSendEncrypted, authFlags)
	return append(out, ciphertext...), nil
}

// EncodeAuthResponse builds the device-side notification for r; used by simulators.
func EncodeAuthResponse(r AuthResponse, random []byte) []byte {
	switch r {
	case AuthKeyAccepted:
		return []byte{ResponsePrefix, authCmdSendKey, StatusSuccess}
	case AuthKeySendFailed:
		return []byte{ResponsePrefix, authCmdSendKey, StatusFailure}
	case AuthRandomNumber:
		return append([]byte{ResponsePrefix, authCmdRequestRandom, StatusSuccess}, random...)
	case AuthRandomRequestFailed:
		return []byte{ResponsePrefix, authCmdRequestRandom, StatusFailure}
	case AuthSuccess:
		return []byte{ResponsePrefix, authCmdSendEncrypted, StatusSuccess}
	case AuthEncryptionFailed:
		return []byte{ResponsePrefix, authCmdSendEncrypted, StatusFailure}
	default:
		return nil
	}
}
