package testutils

import (
	"github.com/go-ble/ble"
)

// AdvertisementBuilder builds ble.Advertisement values for scan tests.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder starts a connectable advertisement at -50 dBm
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{rssi: -50, connectable: true}}
}

// WithName sets the local name
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

// WithAddress sets the device address
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.addr = ble.NewAddr(addr)
	return b
}

// WithRSSI sets the signal strength
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds advertised service UUIDs, short ("FEE0") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.services = append(b.adv.services, ble.MustParse(u))
	}
	return b
}

// WithManufacturerData sets the manufacturer-specific data
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufacturer = data
	return b
}

// WithConnectable sets whether the device accepts connections
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

// Build returns the configured advertisement
func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	adv.services = append([]ble.UUID(nil), b.adv.services...)
	return &adv
}

// FakeAdvertisement is a static ble.Advertisement
type FakeAdvertisement struct {
	name         string
	addr         ble.Addr
	rssi         int
	services     []ble.UUID
	manufacturer []byte
	connectable  bool
}

var _ ble.Advertisement = (*FakeAdvertisement)(nil)

func (a *FakeAdvertisement) LocalName() string              { return a.name }
func (a *FakeAdvertisement) ManufacturerData() []byte       { return a.manufacturer }
func (a *FakeAdvertisement) ServiceData() []ble.ServiceData { return nil }
func (a *FakeAdvertisement) Services() []ble.UUID           { return a.services }
func (a *FakeAdvertisement) OverflowService() []ble.UUID    { return nil }
func (a *FakeAdvertisement) TxPowerLevel() int              { return 0 }
func (a *FakeAdvertisement) Connectable() bool              { return a.connectable }
func (a *FakeAdvertisement) SolicitedService() []ble.UUID   { return nil }
func (a *FakeAdvertisement) RSSI() int                      { return a.rssi }

func (a *FakeAdvertisement) Addr() ble.Addr {
	if a.addr == nil {
		return ble.NewAddr("00:00:00:00:00:00")
	}
	return a.addr
}
