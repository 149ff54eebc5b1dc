package config

import (
	"log/slog"
	"testing"

	"github.com/alecthomas/kong"
)

func parse(t *testing.T, args []string) (*Server, error) {
	t.Helper()
	var cfg Server
	parser, err := kong.New(&cfg, kong.Name("nvm-server"), kong.Exit(func(int) {}))
	if err != nil {
		t.Fatalf("Cannot build parser: %v", err)
	}
	_, err = parser.Parse(args)
	return &cfg, err
}

func TestDefaults(t *testing.T) {
	cfg, err := parse(t, nil)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.DataDir != "./data/badger" {
		t.Fatalf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Geometry().Size() != 512*128 {
		t.Fatalf("Geometry() = %v", cfg.Geometry())
	}
	if cfg.Level() != slog.LevelInfo {
		t.Fatalf("Level() = %v, want INFO", cfg.Level())
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("NVM_ADDR", "127.0.0.1:9000")
	t.Setenv("NVM_PAGE_SIZE", "64")
	t.Setenv("NVM_PAGE_COUNT", "16")
	t.Setenv("NVM_LOG_LEVEL", "debug")

	cfg, err := parse(t, nil)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.PageSize != 64 || cfg.PageCount != 16 {
		t.Fatalf("Environment ignored: %+v", cfg)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("Level() = %v, want DEBUG", cfg.Level())
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc      string
		args      []string
		wantError bool
	}{
		{desc: "Flags override defaults", args: []string{"--page-size=256", "--page-count=4"}},
		{desc: "Page size not a power of two", args: []string{"--page-size=100"}, wantError: true},
		{desc: "Negative busy polls", args: []string{"--busy-polls=-1"}, wantError: true},
		{desc: "Unknown log level", args: []string{"--log-level=loud"}, wantError: true},
	}

	for _, tc := range testCases {
		_, err := parse(t, tc.args)
		if (err != nil) != tc.wantError {
			t.Fatalf("Test %q: failed = %t (%v), want %t", tc.desc, err != nil, err, tc.wantError)
		}
	}
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		name string
		want slog.Level
	}{
		{name: "debug", want: slog.LevelDebug},
		{name: "INFO", want: slog.LevelInfo},
		{name: "warn", want: slog.LevelWarn},
		{name: "error", want: slog.LevelError},
	}
	for _, tc := range testCases {
		got, err := ParseLevel(tc.name)
		if err != nil || got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, %v, want %v", tc.name, got, err, tc.want)
		}
	}
}
