package ids

import "sync/atomic"

type DeviceID uint64
type SessionID uint64

type Generator struct {
	deviceCounter  uint64
	sessionCounter uint64
}

func NewGenerator() *Generator {
	return &Generator{
		deviceCounter:  0,
		sessionCounter: 0,
	}
}

func (g *Generator) NextDevice() DeviceID {
	return DeviceID(atomic.AddUint64(&g.deviceCounter, 1))
}

func (g *Generator) NextSession() SessionID {
	return SessionID(atomic.AddUint64(&g.sessionCounter, 1))
}

type GeneratorSnapshot struct {
	DeviceCounter  uint64
	SessionCounter uint64
}

func (g *Generator) Snapshot() GeneratorSnapshot {
	return GeneratorSnapshot{
		DeviceCounter:  atomic.LoadUint64(&g.deviceCounter),
		SessionCounter: atomic.LoadUint64(&g.sessionCounter),
	}
}

func (g *Generator) Restore(snap GeneratorSnapshot) {
	atomic.StoreUint64(&g.deviceCounter, snap.DeviceCounter)
	atomic.StoreUint64(&g.sessionCounter, snap.SessionCounter)
}
