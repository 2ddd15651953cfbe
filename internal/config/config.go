// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

type Config struct {
	Env                string
	WebSocketHost      string
	WebSocketPort      int
	DatabaseURL        string
	DatabaseMaxConns   int32
	AutoMigrate        bool
	AuthToken          string
	NATSURL            string
	LogLevel           string
	LogFile            string
	NativeIdleInterval time.Duration
	EventTypes         EventTypes
}

// EventTypes names the wire types routed to each dedicated handler and the
// interaction sub-kinds that carry mouse, key or touch details.
type EventTypes struct {
	NetworkRequest  string   `json:"NETWORK_REQUEST"`
	NetworkResponse string   `json:"NETWORK_RESPONSE"`
	UserInteraction string   `json:"USER_INTERACTION"`
	MouseEvents     []string `json:"MOUSE_EVENTS"`
	KeyEvents       []string `json:"KEY_EVENTS"`
	TouchEvents     []string `json:"TOUCH_EVENTS"`
	GenericEvents   []string `json:"GENERIC_EVENTS"`
}

func DefaultEventTypes() EventTypes {
	return EventTypes{
		NetworkRequest:  "network_request",
		NetworkResponse: "network_response",
		UserInteraction: "user_interaction",
		MouseEvents:     []string{"click", "dblclick", "mousemove"},
		KeyEvents:       []string{"keydown", "keypress", "keyup"},
		TouchEvents:     []string{"touchstart", "touchmove", "touchend"},
		GenericEvents: []string{
			"navigation",
			"tab_activated",
			"environment",
			"window_state",
			"tab_state",
			"storage",
			"error",
		},
	}
}

// Addr is the listen address of the WebSocket server.
func (c Config) Addr() string {
	return net.JoinHostPort(c.WebSocketHost, strconv.Itoa(c.WebSocketPort))
}

// Load builds the configuration from defaults, then the optional JSON file
// named by CONFIG_FILE (comments and trailing commas allowed), then the
// environment. Environment values win.
func Load() (Config, error) {
	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	port, err := strconv.Atoi(file.getenv("WEBSOCKET_PORT", "8765"))
	if err != nil || port < 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid WEBSOCKET_PORT %q", file.getenv("WEBSOCKET_PORT", ""))
	}

	maxConns, err := strconv.Atoi(file.getenv("DATABASE_MAX_CONNS", "20"))
	if err != nil || maxConns <= 0 {
		return Config{}, fmt.Errorf("invalid DATABASE_MAX_CONNS %q", file.getenv("DATABASE_MAX_CONNS", ""))
	}

	idle, err := time.ParseDuration(file.getenv("NATIVE_IDLE_INTERVAL", "100ms"))
	if err != nil || idle <= 0 {
		return Config{}, fmt.Errorf("invalid NATIVE_IDLE_INTERVAL %q", file.getenv("NATIVE_IDLE_INTERVAL", ""))
	}

	eventTypes, err := file.eventTypes()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Env:                file.getenv("ENV", "dev"),
		WebSocketHost:      file.getenv("WEBSOCKET_HOST", "127.0.0.1"),
		WebSocketPort:      port,
		DatabaseURL:        file.getenv("DATABASE_URL", "sqlite://syrphid.db"),
		DatabaseMaxConns:   int32(maxConns),
		AutoMigrate:        file.getenvBool("AUTO_MIGRATE", true),
		AuthToken:          file.getenv("AUTH_TOKEN", ""),
		NATSURL:            file.getenv("NATS_URL", ""),
		LogLevel:           file.getenv("LOG_LEVEL", "info"),
		LogFile:            file.getenv("LOG_FILE", ""),
		NativeIdleInterval: idle,
		EventTypes:         eventTypes,
	}, nil
}

// fileValues holds the top-level keys of the config file.
type fileValues map[string]json.RawMessage

func readFile(path string) (fileValues, error) {
	if strings.TrimSpace(path) == "" {
		return fileValues{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	values := fileValues{}
	if err := json.Unmarshal(jsonc.ToJSON(data), &values); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return values, nil
}

// getenv returns the environment value, else the file value, else
// defaultValue.
func (f fileValues) getenv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	raw, ok := f[key]
	if !ok {
		return defaultValue
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return defaultValue
		}
		return s
	}
	// numbers and booleans keep their literal text
	if text := strings.TrimSpace(string(raw)); text != "null" {
		return text
	}
	return defaultValue
}

func (f fileValues) getenvBool(key string, defaultValue bool) bool {
	v := f.getenv(key, "")
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// eventTypes overlays EVENT_TYPES from the file onto the defaults. Missing
// or empty entries keep their default.
func (f fileValues) eventTypes() (EventTypes, error) {
	out := DefaultEventTypes()

	raw, ok := f["EVENT_TYPES"]
	if !ok {
		return out, nil
	}

	var fromFile EventTypes
	if err := json.Unmarshal(raw, &fromFile); err != nil {
		return EventTypes{}, fmt.Errorf("parsing EVENT_TYPES: %w", err)
	}

	if fromFile.NetworkRequest != "" {
		out.NetworkRequest = fromFile.NetworkRequest
	}
	if fromFile.NetworkResponse != "" {
		out.NetworkResponse = fromFile.NetworkResponse
	}
	if fromFile.UserInteraction != "" {
		out.UserInteraction = fromFile.UserInteraction
	}
	if len(fromFile.MouseEvents) > 0 {
		out.MouseEvents = fromFile.MouseEvents
	}
	if len(fromFile.KeyEvents) > 0 {
		out.KeyEvents = fromFile.KeyEvents
	}
	if len(fromFile.TouchEvents) > 0 {
		out.TouchEvents = fromFile.TouchEvents
	}
	if len(fromFile.GenericEvents) > 0 {
		out.GenericEvents = fromFile.GenericEvents
	}
	return out, nil
}
