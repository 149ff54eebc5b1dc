package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sekai02/pagewrite/internal/emulator"
	"github.com/sekai02/pagewrite/internal/ids"
	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/sys"
)

var (
	ErrNotFound   = errors.New("device not found")
	ErrStreamOpen = errors.New("device is held by an open stream session")
)

// Spec is the persisted description of a registered device.
type Spec struct {
	HwID     string       `json:"hw_id"`
	Geometry sys.Geometry `json:"geometry"`
}

// BackendFactory creates the NVM backend for a device.
type BackendFactory func(id ids.DeviceID, geo sys.Geometry) (nvm.Backend, error)

// Device serializes every emulator call made against one backend.
type Device struct {
	ID   ids.DeviceID
	Spec Spec

	mu      sync.Mutex
	em      *emulator.Emulator
	pageBuf []byte
	holder  ids.SessionID
}

// Do runs fn with exclusive use of the device and its page buffer. It fails
// with ErrStreamOpen while a stream session is inside a page.
func (d *Device) Do(fn func(em *emulator.Emulator, pageBuf []byte) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.holder != 0 {
		return fmt.Errorf("device %d: %w (session %d)", d.ID, ErrStreamOpen, d.holder)
	}
	return fn(d.em, d.pageBuf)
}

// View runs fn with exclusive use of the device, even while a stream is open.
func (d *Device) View(fn func(em *emulator.Emulator) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return fn(d.em)
}

func (d *Device) NewStream() *emulator.Stream {
	return d.em.NewStream()
}

// StreamWrite writes one byte through s on behalf of session sid. The device
// stays reserved for sid for as long as s is inside a page.
func (d *Device) StreamWrite(sid ids.SessionID, s *emulator.Stream, addr nvm.Address, data byte, finalize bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.holder != 0 && d.holder != sid {
		return fmt.Errorf("device %d: %w (session %d)", d.ID, ErrStreamOpen, d.holder)
	}

	err := s.Write(addr, data, finalize)
	if s.State() == emulator.WithinPage {
		d.holder = sid
	} else if d.holder == sid {
		d.holder = 0
	}
	return err
}

// ResetStream closes the open command of s if sid holds the device.
func (d *Device) ResetStream(sid ids.SessionID, s *emulator.Stream) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.holder == sid {
		s.Reset()
		d.holder = 0
	}
}

func (d *Device) Holder() ids.SessionID {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.holder
}

type Manager struct {
	mu           sync.RWMutex
	devices      map[ids.DeviceID]*Device
	idGen        *ids.Generator
	hwIDToDevice map[string]ids.DeviceID
	factory      BackendFactory
	logger       *slog.Logger
}

func NewManager(idGen *ids.Generator, factory BackendFactory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		devices:      make(map[ids.DeviceID]*Device),
		idGen:        idGen,
		hwIDToDevice: make(map[string]ids.DeviceID),
		factory:      factory,
		logger:       logger,
	}
}

// RegisterDevice returns the device registered under hwID, creating it with
// geo when it does not exist yet.
func (m *Manager) RegisterDevice(hwID string, geo sys.Geometry) (ids.DeviceID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if devID, exists := m.hwIDToDevice[hwID]; exists {
		if have := m.devices[devID].Spec.Geometry; have != geo {
			return devID, fmt.Errorf("device %q already registered with %s", hwID, have)
		}
		return devID, nil
	}

	if err := geo.Validate(); err != nil {
		return 0, fmt.Errorf("register %q: %w", hwID, err)
	}

	devID := m.idGen.NextDevice()
	if err := m.attach(devID, Spec{HwID: hwID, Geometry: geo}); err != nil {
		return 0, err
	}
	return devID, nil
}

func (m *Manager) attach(devID ids.DeviceID, spec Spec) error {
	backend, err := m.factory(devID, spec.Geometry)
	if err != nil {
		return fmt.Errorf("create backend for device %d: %w", devID, err)
	}

	em := emulator.New(backend, m.logger.With("device", devID))
	m.devices[devID] = &Device{
		ID:      devID,
		Spec:    spec,
		em:      em,
		pageBuf: em.NewPageBuffer(),
	}
	m.hwIDToDevice[spec.HwID] = devID
	return nil
}

func (m *Manager) Get(devID ids.DeviceID) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, exists := m.devices[devID]
	return d, exists
}

func (m *Manager) List() []ids.DeviceID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ids.DeviceID, 0, len(m.devices))
	for devID := range m.devices {
		result = append(result, devID)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func (m *Manager) Exists(devID ids.DeviceID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.devices[devID]
	return exists
}

func (m *Manager) SnapshotDevices() map[ids.DeviceID]Spec {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[ids.DeviceID]Spec)
	for k, v := range m.devices {
		result[k] = v.Spec
	}
	return result
}

// RestoreDevices recreates every device in specs through the factory.
func (m *Manager) RestoreDevices(specs map[ids.DeviceID]Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.devices = make(map[ids.DeviceID]*Device)
	m.hwIDToDevice = make(map[string]ids.DeviceID)
	for devID, spec := range specs {
		if err := spec.Geometry.Validate(); err != nil {
			return fmt.Errorf("restore device %d: %w", devID, err)
		}
		if err := m.attach(devID, spec); err != nil {
			return err
		}
	}
	return nil
}
