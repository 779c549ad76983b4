package goble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/protocol"
)

// ScanOptions configures band discovery
type ScanOptions struct {
	Duration time.Duration `default:"10s"`
	// NamePrefixes matches bands that do not advertise the band service
	NamePrefixes []string
	// AllowList restricts results to these addresses
	AllowList []string
	// All disables band filtering
	All bool
}

// Advertisement is one discovered device
type Advertisement struct {
	Address     string
	Name        string
	RSSI        int
	Services    []string
	Connectable bool
	LastSeen    time.Time
}

// scanDevice is the part of ble.Device used for discovery
type scanDevice interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
}

// Scan discovers nearby bands until opts.Duration elapses or ctx ends.
// onFound, if set, is called once per newly discovered device.
func Scan(ctx context.Context, opts ScanOptions, logger *logrus.Logger, onFound func(Advertisement)) ([]Advertisement, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	return scan(ctx, dev, opts, logger, onFound)
}

func scan(ctx context.Context, dev scanDevice, opts ScanOptions, logger *logrus.Logger, onFound func(Advertisement)) ([]Advertisement, error) {
	defaults.SetDefaults(&opts)

	if logger != nil {
		logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	}

	scanCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	found := hashmap.New[string, *Advertisement]()
	handler := func(adv ble.Advertisement) {
		if !opts.matches(adv) {
			return
		}
		addr := adv.Addr().String()
		entry := toAdvertisement(adv)

		existing, loaded := found.Get(addr)
		if !loaded {
			existing, loaded = found.GetOrInsert(addr, &entry)
		}
		if loaded {
			existing.RSSI = entry.RSSI
			existing.LastSeen = entry.LastSeen
			if entry.Name != "" {
				existing.Name = entry.Name
			}
			return
		}
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"address": addr,
				"name":    entry.Name,
				"rssi":    entry.RSSI,
			}).Info("Discovered band")
		}
		if onFound != nil {
			onFound(entry)
		}
	}

	err := dev.Scan(scanCtx, true, handler)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	out := make([]Advertisement, 0, found.Len())
	found.Range(func(_ string, adv *Advertisement) bool {
		out = append(out, *adv)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})

	if logger != nil {
		logger.WithField("device_count", len(out)).Info("BLE scan completed")
	}
	return out, nil
}

func (o ScanOptions) matches(adv ble.Advertisement) bool {
	if len(o.AllowList) > 0 {
		addr := strings.ToLower(adv.Addr().String())
		allowed := false
		for _, a := range o.AllowList {
			if strings.ToLower(a) == addr {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	if o.All {
		return true
	}

	bandService := normalizeUUID(protocol.ServiceBand1)
	for _, u := range adv.Services() {
		if normalizeUUID(u.String()) == bandService {
			return true
		}
	}
	name := adv.LocalName()
	for _, p := range o.NamePrefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func toAdvertisement(adv ble.Advertisement) Advertisement {
	services := make([]string, 0, len(adv.Services()))
	for _, u := range adv.Services() {
		services = append(services, u.String())
	}
	return Advertisement{
		Address:     adv.Addr().String(),
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		Services:    services,
		Connectable: adv.Connectable(),
		LastSeen:    time.Now(),
	}
}
