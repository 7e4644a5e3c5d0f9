package config

import (
	"os"
	"testing"
)

type TestConfig struct {
	Database struct {
		DSN      string `yaml:"dsn" json:"dsn"`
		MaxConns int    `yaml:"max_conns" json:"max_conns"`
	} `yaml:"database" json:"database"`
	Server struct {
		Port int    `yaml:"port" json:"port"`
		Host string `yaml:"host" json:"host"`
	} `yaml:"server" json:"server"`
}

func TestLoadYAML(t *testing.T) {
	// Create temporary YAML file
	yamlContent := `
database:
  dsn: "postgres://localhost/test"
  max_conns: 25
server:
  port: 8080
  host: "localhost"
`
	tmpFile := createTempFile(t, "test.yaml", yamlContent)
	defer os.Remove(tmpFile)

	var cfg TestConfig
	if err := LoadYAML(tmpFile, &cfg); err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}

	if cfg.Database.DSN != "postgres://localhost/test" {
		t.Errorf("Database.DSN = %v, want postgres://localhost/test", cfg.Database.DSN)
	}
	if cfg.Database.MaxConns != 25 {
		t.Errorf("Database.MaxConns = %v, want 25", cfg.Database.MaxConns)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want 8080", cfg.Server.Port)
	}
}

func TestLoadJSON(t *testing.T) {
	// Create temporary JSON file
	jsonContent := `{
  "database": {
    "dsn": "postgres://localhost/test",
    "max_conns": 25
  },
  "server": {
    "port": 8080,
    "host": "localhost"
  }
}`
	tmpFile := createTempFile(t, "test.json", jsonContent)
	defer os.Remove(tmpFile)

	var cfg TestConfig
	if err := LoadJSON(tmpFile, &cfg); err != nil {
		t.Fatalf("LoadJSON failed: %v", err)
	}

	if cfg.Database.DSN != "postgres://localhost/test" {
		t.Errorf("Database.DSN = %v, want postgres://localhost/test", cfg.Database.DSN)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want 8080", cfg.Server.Port)
	}
}

func TestRangeValidator(t *testing.T) {
	cfg := TestConfig{
		Database: struct {
			DSN      string `yaml:"dsn" json:"dsn"`
			MaxConns int    `yaml:"max_conns" json:"max_conns"`
		}{
			DSN:      "postgres://localhost/test",
			MaxConns: 5,
		},
	}

	// Use nested field path
	validator := RangeValidator("Database.MaxConns", 10, 100)
	if err := validator.Validate(&cfg); err == nil {
		t.Error("RangeValidator should fail for value below minimum")
	}

	cfg.Database.MaxConns = 50
	if err := validator.Validate(&cfg); err != nil {
		t.Errorf("RangeValidator should pass for value in range: %v", err)
	}
}

func TestManagerValidate(t *testing.T) {
	cfg := TestConfig{}
	cfg.Database.MaxConns = 5

	mgr := NewManager(&cfg)
	mgr.AddValidator(RangeValidator("Database.MaxConns", 10, 100))
	if err := mgr.Validate(); err == nil {
		t.Error("Manager.Validate should fail for value below minimum")
	}

	cfg.Database.MaxConns = 25
	if err := mgr.Validate(); err != nil {
		t.Errorf("Manager.Validate should pass for value in range: %v", err)
	}
	if mgr.Get().(*TestConfig) != &cfg {
		t.Error("Manager.Get should return the same config pointer it was constructed with")
	}
}

func createTempFile(t *testing.T, name, content string) string {
	tmpFile := name
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	return tmpFile
}
