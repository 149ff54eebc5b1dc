// Package nvmapi is the public surface of the page write service.
package nvmapi

import (
	"context"

	"github.com/sekai02/pagewrite/internal/api"
	"github.com/sekai02/pagewrite/internal/ids"
	"github.com/sekai02/pagewrite/internal/session"
	"github.com/sekai02/pagewrite/internal/sys"
)

type FlashAPI interface {
	RegisterDevice(ctx context.Context, hwID string, geo sys.Geometry) (uint64, error)
	DeviceList(ctx context.Context) ([]uint64, error)
	DeviceInfo(ctx context.Context, deviceID uint64) (api.DeviceInfo, error)
	PutByte(ctx context.Context, deviceID uint64, addr uint32, data byte) error
	WriteBlock(ctx context.Context, deviceID uint64, addr uint32, data []byte) (int, error)
	Read(ctx context.Context, deviceID uint64, addr uint32, length int64) ([]byte, error)
	ErasePage(ctx context.Context, deviceID uint64, addr uint32) error
	Checksum(ctx context.Context, deviceID uint64, addr uint32, length int64) (api.Checksum, error)
	ImportFile(ctx context.Context, deviceID uint64, addr uint32, osPath string) (int, error)
	ExportFile(ctx context.Context, deviceID uint64, addr uint32, length int64, osPath string) error
}

type StreamAPI interface {
	StreamOpen(ctx context.Context, deviceID uint64) (uint64, error)
	StreamWrite(ctx context.Context, sessionID uint64, addr uint32, data []byte, finalize bool) (int, error)
	StreamInfo(ctx context.Context, sessionID uint64) (session.Info, error)
	StreamClose(ctx context.Context, sessionID uint64) error
}

type API interface {
	FlashAPI
	StreamAPI
}

var _ API = (*api.Service)(nil)

func DeviceIDFromUint64(v uint64) ids.DeviceID {
	return ids.DeviceID(v)
}

func SessionIDFromUint64(v uint64) ids.SessionID {
	return ids.SessionID(v)
}

func DeviceIDToUint64(v ids.DeviceID) uint64 {
	return uint64(v)
}

func SessionIDToUint64(v ids.SessionID) uint64 {
	return uint64(v)
}
