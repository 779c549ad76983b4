package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/transport/goble"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string
		excludes []string
	}{
		{
			name:     "plain error passes through",
			err:      errors.New("boom"),
			contains: []string{"boom"},
			excludes: []string{"\n"},
		},
		{
			name:     "disconnect gets a range hint",
			err:      fmt.Errorf("%w: %w", ErrConnectionLost, &protocol.Error{Kind: protocol.TransportDisconnected, Op: "read battery"}),
			contains: []string{"connection lost", "read battery", "in range"},
		},
		{
			name:     "auth failure mentions the key",
			err:      &protocol.Error{Kind: protocol.AuthFailed, Op: "authenticate", Reason: "encryption_key_failed"},
			contains: []string{"encryption_key_failed", "check the key"},
		},
		{
			name:     "unrecoverable transfer warns",
			err:      &protocol.Error{Kind: protocol.TransferInterrupted, Op: "update firmware", Reason: "checksum", Unrecoverable: true},
			contains: []string{"transfer was interrupted", "WARNING"},
		},
		{
			name:     "recoverable transfer does not warn",
			err:      &protocol.Error{Kind: protocol.TransferInterrupted, Op: "update firmware", Reason: "start"},
			excludes: []string{"WARNING"},
		},
		{
			name:     "missing characteristic",
			err:      fmt.Errorf("write battery: %w", goble.ErrChannelUnavailable),
			contains: []string{"unsupported"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatUserError(tt.err)
			for _, want := range tt.contains {
				assert.Contains(t, msg, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, msg, unwanted)
			}
		})
	}

	assert.Empty(t, FormatUserError(nil))
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
