package main

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "sync"

    "github.com/go-playground/validator/v10"
)

// defaultConfigPath is the default filename for the node configuration.
const defaultConfigPath = "config.json"

// ConfigManager wraps the loaded configuration and a mutex for concurrent access.
// The configuration is read once at boot; the only write happens when no file
// exists yet and the defaults are persisted.
type ConfigManager struct {
    mu     sync.RWMutex
    path   string
    cfg    Config
    loaded bool
}

// NewConfigManager returns a manager reading from path.  An empty path selects
// config.json in the working directory.
func NewConfigManager(path string) *ConfigManager {
    if path == "" {
        path = defaultConfigPath
    }
    return &ConfigManager{path: path}
}

// defaultConfig returns the configuration written on first boot.  The admin
// password is "admin", which you should change immediately.
func defaultConfig() Config {
    return Config{
        HTTPPort:         80,
        Title:            "Weather Node",
        LogFile:          "events.log",
        LogLevel:         "INFO",
        Interface:        "wlan0",
        PollIntervalMS:   500,
        ConnectCommand:   []string{"wpa_cli", "-i", "wlan0", "reconnect"},
        ReconnectCommand: []string{"wpa_cli", "-i", "wlan0", "reconnect"},
        SensorPin:        26,
        ButtonPin:        17,
        LEDPin:           27,
        HoldMS:           200,
        ReportIntervalS:  10,
        Users: []User{
            {Username: "admin", PasswordHash: hashPassword("admin"), Admin: true},
        },
    }
}

// Load reads configuration from disk.  If the file does not exist, the default
// configuration is persisted and used.  The result is validated before it is
// accepted.
func (cm *ConfigManager) Load() error {
    cm.mu.Lock()
    if cm.loaded {
        cm.mu.Unlock()
        return nil
    }
    data, err := os.ReadFile(cm.path)
    if err != nil {
        if errors.Is(err, os.ErrNotExist) {
            cm.cfg = defaultConfig()
            cm.loaded = true
            // Release the write lock before saving: Save acquires a read
            // lock on the same mutex.
            cm.mu.Unlock()
            return cm.Save()
        }
        cm.mu.Unlock()
        return fmt.Errorf("unable to read config: %w", err)
    }
    // Start from defaults so that fields missing from an older file keep
    // sensible values.
    cfg := defaultConfig()
    // Users from the file replace the default admin rather than being
    // decoded on top of it.
    defaultUsers := cfg.Users
    cfg.Users = nil
    if err := json.Unmarshal(data, &cfg); err != nil {
        cm.mu.Unlock()
        return fmt.Errorf("invalid %s: %w", cm.path, err)
    }
    if cfg.Users == nil {
        cfg.Users = defaultUsers
    }
    if err := validateConfig(cfg); err != nil {
        cm.mu.Unlock()
        return err
    }
    cm.cfg = cfg
    cm.loaded = true
    cm.mu.Unlock()
    return nil
}

// validateConfig checks the struct tags declared on Config.
func validateConfig(cfg Config) error {
    if err := validator.New().Struct(cfg); err != nil {
        var verrs validator.ValidationErrors
        if errors.As(err, &verrs) && len(verrs) > 0 {
            return fmt.Errorf("invalid config: field %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
        }
        return fmt.Errorf("invalid config: %w", err)
    }
    return nil
}

// Save writes the configuration to disk via a temporary file and rename.
func (cm *ConfigManager) Save() error {
    cm.mu.RLock()
    defer cm.mu.RUnlock()

    bytes, err := json.MarshalIndent(cm.cfg, "", "  ")
    if err != nil {
        return err
    }
    tmpPath := cm.path + ".tmp"
    if err := os.WriteFile(tmpPath, bytes, 0600); err != nil {
        return err
    }
    return os.Rename(tmpPath, cm.path)
}

// Get returns a copy of the current configuration.  Callers must treat the
// returned Config as immutable.
func (cm *ConfigManager) Get() Config {
    cm.mu.RLock()
    defer cm.mu.RUnlock()
    return cm.cfg
}

// FindUser returns a user and its index by username.  If not found, index
// will be -1.
func (cm *ConfigManager) FindUser(username string) (User, int) {
    cm.mu.RLock()
    defer cm.mu.RUnlock()
    for i, u := range cm.cfg.Users {
        if u.Username == username {
            return u, i
        }
    }
    return User{}, -1
}

// Authenticate checks whether the provided username and password are valid.  It
// returns the user object if authentication succeeds.
func (cm *ConfigManager) Authenticate(username, password string) (User, error) {
    user, _ := cm.FindUser(username)
    if user.Username == "" {
        return User{}, errInvalidCredentials
    }
    if err := checkPasswordHash(password, user.PasswordHash); err != nil {
        return User{}, errInvalidCredentials
    }
    return user, nil
}
