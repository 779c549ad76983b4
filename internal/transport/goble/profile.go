package goble

import (
	"strings"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/srg/bandlink/internal/protocol"
)

const sigBaseSuffix = "00001000800000805f9b34fb"

// normalizeUUID converts a UUID to 32 lowercase hex digits without dashes.
// 16-bit SIG short forms are expanded onto the Bluetooth base UUID.
func normalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")
	switch len(s) {
	case 4:
		return "0000" + s + sigBaseSuffix
	case 8:
		return s + sigBaseSuffix
	}
	return s
}

// mapChannels finds the characteristic behind every known channel
func mapChannels(profile *ble.Profile) *hashmap.Map[protocol.Channel, *ble.Characteristic] {
	type key struct{ service, char string }

	wanted := make(map[key]protocol.Channel)
	for _, ch := range protocol.Channels() {
		if ep, ok := ch.Endpoint(); ok {
			wanted[key{normalizeUUID(ep.Service), normalizeUUID(ep.Characteristic)}] = ch
		}
	}

	out := hashmap.New[protocol.Channel, *ble.Characteristic]()
	if profile == nil {
		return out
	}
	for _, svc := range profile.Services {
		svcUUID := normalizeUUID(svc.UUID.String())
		for _, c := range svc.Characteristics {
			if ch, ok := wanted[key{svcUUID, normalizeUUID(c.UUID.String())}]; ok {
				out.Set(ch, c)
			}
		}
	}
	return out
}
