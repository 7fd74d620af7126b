package main

import (
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
    t.Helper()
    path := filepath.Join(t.TempDir(), "config.json")
    require.NoError(t, os.WriteFile(path, []byte(body), 0600))
    return path
}

func TestConfigDefaultsWrittenOnFirstBoot(t *testing.T) {
    path := filepath.Join(t.TempDir(), "config.json")
    cm := NewConfigManager(path)
    require.NoError(t, cm.Load())

    cfg := cm.Get()
    assert.Equal(t, 80, cfg.HTTPPort)
    assert.Equal(t, "wlan0", cfg.Interface)
    assert.Equal(t, 26, cfg.SensorPin)
    assert.FileExists(t, path)

    user, err := cm.Authenticate("admin", "admin")
    require.NoError(t, err)
    assert.True(t, user.Admin)
    _, err = cm.Authenticate("admin", "wrong")
    assert.ErrorIs(t, err, errInvalidCredentials)
    _, err = cm.Authenticate("nobody", "admin")
    assert.ErrorIs(t, err, errInvalidCredentials)

    // The persisted file loads back to the same configuration.
    again := NewConfigManager(path)
    require.NoError(t, again.Load())
    assert.Equal(t, cfg, again.Get())
    _, err = again.Authenticate("admin", "admin")
    require.NoError(t, err)
}

func TestConfigPartialFileKeepsDefaults(t *testing.T) {
    cm := NewConfigManager(writeConfig(t, `{"title": "Greenhouse", "http_port": 8080}`))
    require.NoError(t, cm.Load())

    cfg := cm.Get()
    assert.Equal(t, "Greenhouse", cfg.Title)
    assert.Equal(t, 8080, cfg.HTTPPort)
    assert.Equal(t, 200, cfg.HoldMS)
    assert.Equal(t, 17, cfg.ButtonPin)
    _, idx := cm.FindUser("admin")
    assert.Equal(t, 0, idx)
}

func TestConfigRejectsInvalidFiles(t *testing.T) {
    tests := []struct {
        name string
        body string
        want []string
    }{
        {"malformed", `{"http_port": `, []string{"invalid"}},
        {"port zero", `{"http_port": 0}`, []string{"HTTPPort", "min"}},
        {"shared pin", `{"button_pin": 27, "led_pin": 27}`, []string{"ButtonPin", "nefield"}},
        {"log level", `{"log_level": "LOUD"}`, []string{"LogLevel", "oneof"}},
        {"user without hash", `{"users": [{"username": "guest"}]}`, []string{"PasswordHash", "required"}},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            err := NewConfigManager(writeConfig(t, tt.body)).Load()
            require.Error(t, err)
            for _, w := range tt.want {
                assert.Contains(t, err.Error(), w)
            }
        })
    }
}

func TestConfigUsersReplaceDefaults(t *testing.T) {
    body := `{"users": [{"username": "ops", "password_hash": "` + quickHash("s3cret") + `"}]}`
    cm := NewConfigManager(writeConfig(t, body))
    require.NoError(t, cm.Load())

    user, err := cm.Authenticate("ops", "s3cret")
    require.NoError(t, err)
    assert.False(t, user.Admin)
    _, err = cm.Authenticate("admin", "admin")
    assert.ErrorIs(t, err, errInvalidCredentials)
}

func TestConfigLoadIsIdempotent(t *testing.T) {
    path := writeConfig(t, `{"title": "First"}`)
    cm := NewConfigManager(path)
    require.NoError(t, cm.Load())
    require.NoError(t, os.WriteFile(path, []byte(`{"title": "Second"}`), 0600))
    require.NoError(t, cm.Load())
    assert.Equal(t, "First", cm.Get().Title)
}

func TestNewConfigManagerDefaultPath(t *testing.T) {
    assert.Equal(t, defaultConfigPath, NewConfigManager("").path)
}
