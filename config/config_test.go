package config

import (
	"testing"
	"time"
)

type testConfig struct {
	StringField   string        `env:"TEST_STRING"`
	IntField      int           `env:"TEST_INT"`
	BoolField     bool          `env:"TEST_BOOL"`
	DurationField time.Duration `env:"TEST_DURATION" envDefault:"5m"`
	SliceField    []string      `env:"TEST_SLICE" envSeparator:","`
	DefaultField  string        `env:"TEST_DEFAULT" envDefault:"defaultValue"`
	NoTagField    string
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected testConfig
		wantErr  bool
	}{
		{
			name: "all fields set from environment",
			env: map[string]string{
				"APP_TEST_STRING":   "hello",
				"APP_TEST_INT":      "42",
				"APP_TEST_BOOL":     "true",
				"APP_TEST_DURATION": "10s",
				"APP_TEST_SLICE":    "ROLE_USER,ROLE_ADMIN",
			},
			expected: testConfig{
				StringField:   "hello",
				IntField:      42,
				BoolField:     true,
				DurationField: 10 * time.Second,
				SliceField:    []string{"ROLE_USER", "ROLE_ADMIN"},
				DefaultField:  "defaultValue",
			},
		},
		{
			name: "override default value",
			env:  map[string]string{"APP_TEST_DEFAULT": "overridden"},
			expected: testConfig{
				DurationField: 5 * time.Minute,
				DefaultField:  "overridden",
			},
		},
		{
			name: "unprefixed variables are ignored",
			env:  map[string]string{"TEST_STRING": "nope"},
			expected: testConfig{
				DurationField: 5 * time.Minute,
				DefaultField:  "defaultValue",
			},
		},
		{
			name:    "invalid int value",
			env:     map[string]string{"APP_TEST_INT": "not-a-number"},
			wantErr: true,
		},
		{
			name:    "invalid duration value",
			env:     map[string]string{"APP_TEST_DURATION": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg testConfig
			err := Load(&cfg, LoadOptions{Prefix: "APP_", Environment: tt.env})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if cfg.StringField != tt.expected.StringField {
				t.Errorf("StringField = %q, want %q", cfg.StringField, tt.expected.StringField)
			}
			if cfg.IntField != tt.expected.IntField {
				t.Errorf("IntField = %d, want %d", cfg.IntField, tt.expected.IntField)
			}
			if cfg.BoolField != tt.expected.BoolField {
				t.Errorf("BoolField = %v, want %v", cfg.BoolField, tt.expected.BoolField)
			}
			if cfg.DurationField != tt.expected.DurationField {
				t.Errorf("DurationField = %v, want %v", cfg.DurationField, tt.expected.DurationField)
			}
			if len(cfg.SliceField) != len(tt.expected.SliceField) {
				t.Fatalf("SliceField = %v, want %v", cfg.SliceField, tt.expected.SliceField)
			}
			for i := range cfg.SliceField {
				if cfg.SliceField[i] != tt.expected.SliceField[i] {
					t.Errorf("SliceField[%d] = %q, want %q", i, cfg.SliceField[i], tt.expected.SliceField[i])
				}
			}
			if cfg.DefaultField != tt.expected.DefaultField {
				t.Errorf("DefaultField = %q, want %q", cfg.DefaultField, tt.expected.DefaultField)
			}
		})
	}
}

func TestLoadDefaultPrefix(t *testing.T) {
	t.Setenv("BEAVER_TEST_STRING", "from-process-env")

	var cfg testConfig
	if err := Load(&cfg); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.StringField != "from-process-env" {
		t.Errorf("StringField = %q, want %q", cfg.StringField, "from-process-env")
	}
}

func TestLoadWithDebug(t *testing.T) {
	var cfg testConfig
	err := Load(&cfg, LoadOptions{
		Prefix:      "APP_",
		Debug:       true,
		Environment: map[string]string{"APP_TEST_STRING": "debug-test"},
	})
	if err != nil {
		t.Fatalf("Load() with debug enabled failed: %v", err)
	}
	if cfg.StringField != "debug-test" {
		t.Errorf("StringField = %q, want %q", cfg.StringField, "debug-test")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"APP_OAUTH_GOOGLE_CLIENT_SECRET", "s3cr3t", "****"},
		{"APP_SOCIAL_STATE_HASH_KEY", "k", "****"},
		{"APP_SOCIAL_TEMPORARY_USER_PASSWORD", "", ""},
		{"APP_SOCIAL_SIGN_UP_URL", "/signUp", "/signUp"},
	}
	for _, tt := range tests {
		if got := mask(tt.name, tt.value); got != tt.want {
			t.Errorf("mask(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
