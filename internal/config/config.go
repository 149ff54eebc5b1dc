// Package config holds the server settings. Every flag falls back to an
// environment variable so the server can run unattended.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sekai02/pagewrite/internal/sys"
)

type Server struct {
	Addr      string `help:"Listen address." default:":8080" env:"NVM_ADDR"`
	DataDir   string `help:"Badger directory, empty keeps everything in memory." default:"./data/badger" env:"NVM_DATA_DIR"`
	PageSize  int    `help:"Page size of the default device." default:"512" env:"NVM_PAGE_SIZE"`
	PageCount int    `help:"Page count of the default device." default:"128" env:"NVM_PAGE_COUNT"`
	BusyPolls int    `help:"Busy polls reported after each erase or page write." default:"0" env:"NVM_BUSY_POLLS"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error" env:"NVM_LOG_LEVEL"`
}

func (s *Server) Geometry() sys.Geometry {
	return sys.Geometry{PageSize: s.PageSize, PageCount: s.PageCount}
}

// Validate is called by kong after parsing.
func (s *Server) Validate() error {
	if err := s.Geometry().Validate(); err != nil {
		return fmt.Errorf("default device: %w", err)
	}
	if s.BusyPolls < 0 {
		return fmt.Errorf("busy polls must not be negative")
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

func (s *Server) Level() slog.Level {
	level, _ := ParseLevel(s.LogLevel)
	return level
}

func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}
