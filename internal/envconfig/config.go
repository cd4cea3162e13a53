// Package envconfig reads the ONNXGL_* environment variables.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel returns the log level selected by ONNXGL_DEBUG.
// Values: 0/false = INFO (default), 1/true = DEBUG, 2 = DEBUG-4.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("ONNXGL_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

var (
	// WebGLContext selects the context version: "webgl2" (default) or "webgl".
	WebGLContext = String("ONNXGL_WEBGL_CONTEXT")

	// MaxTextureSize overrides the device texture size limit; 0 keeps the
	// device value.
	MaxTextureSize = Uint("ONNXGL_MAX_TEXTURE_SIZE", 0)

	// Packed enables four-channel kernels for MatMul and Conv.
	Packed = BoolWithDefault("ONNXGL_PACKED")

	// TexturePoolSize is the number of idle textures kept per size and format.
	TexturePoolSize = Uint("ONNXGL_TEXTURE_POOL_SIZE", 16)
)

// Var returns an environment variable stripped of surrounding quotes and
// spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// BoolWithDefault returns a reader of a boolean variable. Unparseable
// non-empty values count as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a reader of a boolean variable defaulting to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a reader of a string variable.
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint returns a reader of an unsigned integer variable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// EnvVar describes one configuration variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every configuration variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"ONNXGL_DEBUG":             {"ONNXGL_DEBUG", LogLevel(), "Show additional debug information (e.g. ONNXGL_DEBUG=1)"},
		"ONNXGL_WEBGL_CONTEXT":     {"ONNXGL_WEBGL_CONTEXT", WebGLContext(), "WebGL context version, webgl2 or webgl (default: webgl2)"},
		"ONNXGL_MAX_TEXTURE_SIZE":  {"ONNXGL_MAX_TEXTURE_SIZE", MaxTextureSize(), "Override the maximum texture dimension (0: device limit)"},
		"ONNXGL_PACKED":            {"ONNXGL_PACKED", Packed(true), "Use packed four-channel kernels for MatMul and Conv"},
		"ONNXGL_TEXTURE_POOL_SIZE": {"ONNXGL_TEXTURE_POOL_SIZE", TexturePoolSize(), "Idle textures kept per size and format"},
	}
}

// Values returns the current value of every variable as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
