package api

import (
	"context"

	"github.com/sekai02/pagewrite/internal/ids"
	"github.com/sekai02/pagewrite/internal/nvm"
	"github.com/sekai02/pagewrite/internal/session"
)

func (s *Service) StreamOpen(ctx context.Context, deviceID uint64) (uint64, error) {
	sid, err := s.sessionMgr.Open(ctx, ids.DeviceID(deviceID))
	if err != nil {
		return 0, err
	}
	return uint64(sid), nil
}

func (s *Service) StreamWrite(ctx context.Context, sessionID uint64, addr uint32, data []byte, finalize bool) (int, error) {
	sid := ids.SessionID(sessionID)
	return s.sessionMgr.WriteBlock(ctx, sid, nvm.Address(addr), data, finalize)
}

func (s *Service) StreamInfo(ctx context.Context, sessionID uint64) (session.Info, error) {
	sid := ids.SessionID(sessionID)
	return s.sessionMgr.Info(ctx, sid)
}

func (s *Service) StreamClose(ctx context.Context, sessionID uint64) error {
	sid := ids.SessionID(sessionID)
	return s.sessionMgr.Close(ctx, sid)
}
