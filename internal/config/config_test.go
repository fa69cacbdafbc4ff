package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:  "/home/user/.local/share/bk",
		LogDir:   "/home/user/.local/share/bk/log",
		Timezone: "Europe/Berlin",
		Store: StoreConfig{
			Type:        "s3",
			OpTimeout:   Duration{3 * time.Second},
			S3Bucket:    "breakfast",
			S3Prefix:    "hotel-a",
			S3Region:    "eu-central-1",
			S3Endpoint:  "http://localhost:9000",
			S3PathStyle: true,
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/bk/keys/bk.pub",
			PrivateKeyPath: "/home/user/.local/share/bk/keys/bk.key",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  Duration{5 * time.Second},
			ShutdownTimeout: Duration{time.Minute},
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.Timezone != original.Timezone {
		t.Errorf("Timezone = %q, want %q", got.Timezone, original.Timezone)
	}
	if got.Store != original.Store {
		t.Errorf("Store = %+v, want %+v", got.Store, original.Store)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Server != original.Server {
		t.Errorf("Server = %+v, want %+v", got.Server, original.Server)
	}
	if got.Metrics != original.Metrics {
		t.Errorf("Metrics = %+v, want %+v", got.Metrics, original.Metrics)
	}
}

func TestManager_Read(t *testing.T) {
	t.Run("parses durations", func(t *testing.T) {
		input := `
[store]
type = "memory"
op_timeout = "250ms"

[server]
request_timeout = "2s"
`
		cfg, err := (&Manager{}).Read(strings.NewReader(input))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if cfg.Store.OpTimeout.Duration != 250*time.Millisecond {
			t.Errorf("OpTimeout = %v, want 250ms", cfg.Store.OpTimeout.Duration)
		}
		if cfg.Server.RequestTimeout.Duration != 2*time.Second {
			t.Errorf("RequestTimeout = %v, want 2s", cfg.Server.RequestTimeout.Duration)
		}
	})

	t.Run("rejects bad duration", func(t *testing.T) {
		input := "[server]\nrequest_timeout = \"soon\"\n"
		if _, err := (&Manager{}).Read(strings.NewReader(input)); err == nil {
			t.Fatal("Read() expected error for bad duration")
		}
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		input := "[store]\ntype = \"memory\"\nbucket = \"x\"\n"
		if _, err := (&Manager{}).Read(strings.NewReader(input)); err == nil {
			t.Fatal("Read() expected error for unknown key")
		}
	})
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/bk")

	if cfg.LogDir != "/data/bk/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/bk/log")
	}
	if cfg.Store.Type != "filesystem" {
		t.Errorf("Store.Type = %q, want %q", cfg.Store.Type, "filesystem")
	}
	if cfg.Store.FSRoot != "/data/bk/records" {
		t.Errorf("Store.FSRoot = %q, want %q", cfg.Store.FSRoot, "/data/bk/records")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/bk/keys/bk.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/bk/keys/bk.key")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory store", mutate: func(c *Config) { c.Store = StoreConfig{Type: "memory"} }},
		{name: "sqlite store", mutate: func(c *Config) { c.Store = StoreConfig{Type: "sqlite", SQLitePath: "/tmp/bk.db"} }},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Type = "redis" }, wantErr: `unknown type "redis"`},
		{name: "filesystem without root", mutate: func(c *Config) { c.Store.FSRoot = "" }, wantErr: "fs_root is required"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store = StoreConfig{Type: "sqlite"} }, wantErr: "sqlite_path is required"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store = StoreConfig{Type: "postgres"} }, wantErr: "postgres_dsn is required"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Store = StoreConfig{Type: "s3"} }, wantErr: "s3_bucket is required"},
		{name: "unknown encryption", mutate: func(c *Config) { c.Encryption.Type = "rot13" }, wantErr: `unknown type "rot13"`},
		{name: "age without keys", mutate: func(c *Config) { c.Encryption = EncryptionConfig{Type: "age"} }, wantErr: "key paths are required"},
		{name: "negative timeout", mutate: func(c *Config) { c.Server.RequestTimeout = Duration{-time.Second} }, wantErr: "request_timeout"},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data/bk")
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Location(t *testing.T) {
	cfg := NewConfig("/data/bk")
	cfg.Timezone = "UTC"
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc != time.UTC {
		t.Errorf("Location() = %v, want UTC", loc)
	}

	cfg.Timezone = ""
	loc, err = cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc != time.Local {
		t.Errorf("Location() = %v, want Local", loc)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "bk.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bk.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})

	t.Run("refuses invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bk.toml")
		cfg := NewConfig(dir)
		cfg.Store.Type = "nope"

		if err := Init(path, cfg); err == nil {
			t.Fatal("Init() expected error for invalid config")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("config file written despite invalid config")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bk.toml")
		cfg := NewConfig(dir)
		cfg.Store = StoreConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Store.Type != "memory" {
			t.Errorf("Store.Type = %q, want %q", got.Store.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/bk.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})

	t.Run("returns error for invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bk.toml")
		if err := os.WriteFile(path, []byte("[store]\ntype = \"tape\"\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadFromFile(path); err == nil {
			t.Fatal("ReadFromFile() expected error for invalid config")
		}
	})
}
