package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sekai02/pagewrite/internal/checksum"
	"github.com/sekai02/pagewrite/internal/device"
	"github.com/sekai02/pagewrite/internal/emulator"
	"github.com/sekai02/pagewrite/internal/ids"
	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/persistence"
	"github.com/sekai02/pagewrite/internal/session"
	"github.com/sekai02/pagewrite/internal/storage"
	"github.com/sekai02/pagewrite/internal/sys"
)

// MetadataStore persists the device registry.
type MetadataStore interface {
	SaveMetadata(key string, data []byte) error
}

type Service struct {
	deviceMgr  *device.Manager
	sessionMgr *session.Manager
	idGen      *ids.Generator
	store      MetadataStore
}

func NewService(
	deviceMgr *device.Manager,
	sessionMgr *session.Manager,
	idGen *ids.Generator,
	store MetadataStore,
) *Service {
	return &Service{
		deviceMgr:  deviceMgr,
		sessionMgr: sessionMgr,
		idGen:      idGen,
		store:      store,
	}
}

type DeviceInfo struct {
	ID            uint64         `json:"id"`
	HwID          string         `json:"hw_id"`
	Geometry      sys.Geometry   `json:"geometry"`
	StreamSession uint64         `json:"stream_session,omitempty"`
	TouchedPages  []int          `json:"touched_pages,omitempty"`
	Stats         *storage.Stats `json:"stats,omitempty"`
}

type Checksum struct {
	CRC   uint16             `json:"crc"`
	Pages []checksum.PageSum `json:"pages"`
}

// simulated backends report what they have been asked to do
type statsReporter interface {
	Stats() storage.Stats
	Touched() []int
}

func (s *Service) persistMetadata() {
	if s.store == nil {
		return
	}

	data, err := persistence.SaveMetadata(s.idGen, s.deviceMgr)
	if err != nil {
		slog.Error("Failed to serialize metadata", "error", err)
		return
	}

	err = s.store.SaveMetadata("system", data)
	if err != nil {
		slog.Error("Failed to save metadata to storage", "error", err)
	}
}

func (s *Service) device(deviceID uint64) (*device.Device, error) {
	d, exists := s.deviceMgr.Get(ids.DeviceID(deviceID))
	if !exists {
		return nil, fmt.Errorf("device %d: %w", deviceID, device.ErrNotFound)
	}
	return d, nil
}

func (s *Service) RegisterDevice(ctx context.Context, hwID string, geo sys.Geometry) (uint64, error) {
	if hwID == "" {
		return 0, fmt.Errorf("hardware ID must not be empty")
	}

	devID, err := s.deviceMgr.RegisterDevice(hwID, geo)
	if err != nil {
		return 0, fmt.Errorf("register device: %w", err)
	}

	s.persistMetadata()
	return uint64(devID), nil
}

func (s *Service) DeviceList(ctx context.Context) ([]uint64, error) {
	devices := s.deviceMgr.List()
	result := make([]uint64, len(devices))
	for i, dev := range devices {
		result[i] = uint64(dev)
	}
	return result, nil
}

func (s *Service) DeviceInfo(ctx context.Context, deviceID uint64) (DeviceInfo, error) {
	d, err := s.device(deviceID)
	if err != nil {
		return DeviceInfo{}, err
	}

	info := DeviceInfo{
		ID:            uint64(d.ID),
		HwID:          d.Spec.HwID,
		Geometry:      d.Spec.Geometry,
		StreamSession: uint64(d.Holder()),
	}
	err = d.View(func(em *emulator.Emulator) error {
		if r, ok := em.Backend().(statsReporter); ok {
			stats := r.Stats()
			info.Stats = &stats
			info.TouchedPages = r.Touched()
		}
		return nil
	})
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("device info: %w", err)
	}

	return info, nil
}

func (s *Service) PutByte(ctx context.Context, deviceID uint64, addr uint32, data byte) error {
	d, err := s.device(deviceID)
	if err != nil {
		return err
	}

	err = d.Do(func(em *emulator.Emulator, pageBuf []byte) error {
		return em.PutByte(nvm.Address(addr), data, pageBuf)
	})
	if err != nil {
		return fmt.Errorf("write byte: %w", err)
	}
	return nil
}

func (s *Service) WriteBlock(ctx context.Context, deviceID uint64, addr uint32, data []byte) (int, error) {
	d, err := s.device(deviceID)
	if err != nil {
		return 0, err
	}

	err = d.Do(func(em *emulator.Emulator, pageBuf []byte) error {
		return em.WriteBlock(nvm.Address(addr), data, pageBuf)
	})
	if err != nil {
		return 0, fmt.Errorf("write block: %w", err)
	}
	return len(data), nil
}

// Read returns up to length bytes from addr, stopping at the end of the device.
func (s *Service) Read(ctx context.Context, deviceID uint64, addr uint32, length int64) ([]byte, error) {
	d, err := s.device(deviceID)
	if err != nil {
		return nil, err
	}

	size := d.Spec.Geometry.Size()
	if int64(addr) >= size || length < 0 {
		return []byte{}, nil
	}
	if int64(addr)+length > size {
		length = size - int64(addr)
	}

	buf := make([]byte, length)
	err = d.View(func(em *emulator.Emulator) error {
		return em.ReadBlock(nvm.Address(addr), buf)
	})
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return buf, nil
}

func (s *Service) ErasePage(ctx context.Context, deviceID uint64, addr uint32) error {
	d, err := s.device(deviceID)
	if err != nil {
		return err
	}

	err = d.Do(func(em *emulator.Emulator, _ []byte) error {
		return em.ErasePage(nvm.Address(addr))
	})
	if err != nil {
		return fmt.Errorf("erase page: %w", err)
	}
	return nil
}

// Checksum returns the CRC-16 of the range and of the part of each page it covers.
func (s *Service) Checksum(ctx context.Context, deviceID uint64, addr uint32, length int64) (Checksum, error) {
	d, err := s.device(deviceID)
	if err != nil {
		return Checksum{}, err
	}

	data, err := s.Read(ctx, deviceID, addr, length)
	if err != nil {
		return Checksum{}, err
	}

	return Checksum{
		CRC:   checksum.CRC16(data),
		Pages: checksum.Pages(addr, data, d.Spec.Geometry.PageSize),
	}, nil
}

func (s *Service) ImportFile(ctx context.Context, deviceID uint64, addr uint32, osPath string) (int, error) {
	data, err := os.ReadFile(osPath)
	if err != nil {
		return 0, fmt.Errorf("read OS file: %w", err)
	}

	n, err := s.WriteBlock(ctx, deviceID, addr, data)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", osPath, err)
	}
	return n, nil
}

func (s *Service) ExportFile(ctx context.Context, deviceID uint64, addr uint32, length int64, osPath string) error {
	data, err := s.Read(ctx, deviceID, addr, length)
	if err != nil {
		return fmt.Errorf("read device: %w", err)
	}

	err = os.WriteFile(osPath, data, 0644)
	if err != nil {
		return fmt.Errorf("write OS file: %w", err)
	}

	return nil
}
