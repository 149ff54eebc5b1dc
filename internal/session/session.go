package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sekai02/pagewrite/internal/device"
	"github.com/sekai02/pagewrite/internal/emulator"
	"github.com/sekai02/pagewrite/internal/ids"
	"github.com/sekai02/pagewrite/internal/nvm"
)

var ErrNotFound = errors.New("session not found")

// Session is one caller-owned stream over a device.
type Session struct {
	ID      ids.SessionID
	Device  ids.DeviceID
	Written int

	stream *emulator.Stream
}

type Info struct {
	ID      ids.SessionID `json:"id"`
	Device  ids.DeviceID  `json:"device"`
	State   string        `json:"state"`
	Page    nvm.Address   `json:"page"`
	Written int           `json:"written"`
}

type DeviceProvider interface {
	Get(devID ids.DeviceID) (*device.Device, bool)
}

type Manager struct {
	mu       sync.Mutex
	sessions map[ids.SessionID]*Session
	idGen    *ids.Generator
	devices  DeviceProvider
}

func NewManager(idGen *ids.Generator, devices DeviceProvider) *Manager {
	return &Manager{
		sessions: make(map[ids.SessionID]*Session),
		idGen:    idGen,
		devices:  devices,
	}
}

func (m *Manager) Open(ctx context.Context, devID ids.DeviceID) (ids.SessionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, exists := m.devices.Get(devID)
	if !exists {
		return 0, fmt.Errorf("device %d: %w", devID, device.ErrNotFound)
	}

	sid := m.idGen.NextSession()
	m.sessions[sid] = &Session{
		ID:     sid,
		Device: devID,
		stream: d.NewStream(),
	}
	return sid, nil
}

// Write streams one byte. On a device fault the stream is reset and the
// session must restart from a page boundary.
func (m *Manager) Write(ctx context.Context, sid ids.SessionID, addr nvm.Address, data byte, finalize bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, d, err := m.lookup(sid)
	if err != nil {
		return err
	}

	if err := d.StreamWrite(sid, sess.stream, addr, data, finalize); err != nil {
		return err
	}
	sess.Written++
	return nil
}

// WriteBlock streams data one byte at a time starting at addr, finalizing
// after the last byte when finalize is set.
func (m *Manager) WriteBlock(ctx context.Context, sid ids.SessionID, addr nvm.Address, data []byte, finalize bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, d, err := m.lookup(sid)
	if err != nil {
		return 0, err
	}

	for i, b := range data {
		last := finalize && i == len(data)-1
		if err := d.StreamWrite(sid, sess.stream, addr+nvm.Address(i), b, last); err != nil {
			return i, err
		}
		sess.Written++
	}
	return len(data), nil
}

func (m *Manager) Info(ctx context.Context, sid ids.SessionID) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[sid]
	if !exists {
		return Info{}, fmt.Errorf("session %d: %w", sid, ErrNotFound)
	}
	return Info{
		ID:      sess.ID,
		Device:  sess.Device,
		State:   sess.stream.State().String(),
		Page:    sess.stream.Page(),
		Written: sess.Written,
	}, nil
}

// Close ends the session, closing the program command if a page is open.
func (m *Manager) Close(ctx context.Context, sid ids.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, d, err := m.lookup(sid)
	if err != nil {
		return err
	}

	d.ResetStream(sid, sess.stream)
	delete(m.sessions, sid)
	return nil
}

func (m *Manager) List() []ids.SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]ids.SessionID, 0, len(m.sessions))
	for sid := range m.sessions {
		result = append(result, sid)
	}
	return result
}

func (m *Manager) lookup(sid ids.SessionID) (*Session, *device.Device, error) {
	sess, exists := m.sessions[sid]
	if !exists {
		return nil, nil, fmt.Errorf("session %d: %w", sid, ErrNotFound)
	}
	d, exists := m.devices.Get(sess.Device)
	if !exists {
		return nil, nil, fmt.Errorf("device %d of session %d: %w", sess.Device, sid, device.ErrNotFound)
	}
	return sess, d, nil
}
