package testutils

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockGATTClient mocks the GATT calls the go-ble transport issues.
// Subscribe stores the notification handler so tests can Notify through it.
type MockGATTClient struct {
	mock.Mock

	mu           sync.Mutex
	handlers     map[*ble.Characteristic]ble.NotificationHandler
	disconnected chan struct{}
	dropOnce     sync.Once
}

// NewMockGATTClient creates a client whose link is up
func NewMockGATTClient() *MockGATTClient {
	return &MockGATTClient{
		handlers:     make(map[*ble.Characteristic]ble.NotificationHandler),
		disconnected: make(chan struct{}),
	}
}

func (m *MockGATTClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockGATTClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *MockGATTClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	err := m.Called(c, ind).Error(0)
	if err == nil {
		m.mu.Lock()
		m.handlers[c] = h
		m.mu.Unlock()
	}
	return err
}

func (m *MockGATTClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	err := m.Called(c, ind).Error(0)
	if err == nil {
		m.mu.Lock()
		delete(m.handlers, c)
		m.mu.Unlock()
	}
	return err
}

func (m *MockGATTClient) CancelConnection() error {
	return m.Called().Error(0)
}

// Disconnected is closed by Drop
func (m *MockGATTClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// Drop simulates the BLE stack reporting a lost link
func (m *MockGATTClient) Drop() {
	m.dropOnce.Do(func() { close(m.disconnected) })
}

// Notify pushes data through the handler subscribed on c. It reports false
// when nothing is subscribed.
func (m *MockGATTClient) Notify(c *ble.Characteristic, data []byte) bool {
	m.mu.Lock()
	h, ok := m.handlers[c]
	m.mu.Unlock()
	if ok {
		h(data)
	}
	return ok
}

// FakeScanDevice replays advertisements from Scan
type FakeScanDevice struct {
	Advertisements []ble.Advertisement
	// Repeat replays the list this many times; 0 means once
	Repeat int
	Err    error
}

// Scan calls h for every advertisement, then blocks until ctx ends
func (d *FakeScanDevice) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	if d.Err != nil {
		return d.Err
	}
	rounds := d.Repeat
	if rounds <= 0 {
		rounds = 1
	}
	for i := 0; i < rounds; i++ {
		for _, adv := range d.Advertisements {
			h(adv)
		}
	}
	<-ctx.Done()
	return ctx.Err()
}
