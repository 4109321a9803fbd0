package config

import (
	"fmt"
	"strings"

	"wabridge/internal/controller"
)

// ValidationError 汇总所有配置错误
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Is implements errors.Is for ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ErrInvalidConfig is a sentinel for errors.Is matching.
var ErrInvalidConfig = &ValidationError{}

// Validate 检查配置组合是否一致
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Group.Match {
	case "exact", "":
		if strings.TrimSpace(c.Group.ID) == "" {
			add("group.id is required in exact match mode")
		}
	case "suffix":
		if strings.TrimSpace(c.Group.Suffix) == "" {
			add("group.suffix is required in suffix match mode")
		}
	default:
		add("group.match must be exact or suffix, got %q", c.Group.Match)
	}

	switch c.Forward.Strategy {
	case "forward", "echo-ack", "":
	default:
		add("forward.strategy must be forward or echo-ack, got %q", c.Forward.Strategy)
	}

	switch controller.TransportType(c.Controller.Transport) {
	case controller.TransportStdio, "":
	case controller.TransportWebSocket:
		if !c.Gateway.Enabled {
			add("controller.transport websocket requires gateway.enabled")
		}
	default:
		add("controller.transport must be stdio or websocket, got %q", c.Controller.Transport)
	}

	switch c.Controller.Newline {
	case "escape", "reject", "":
	default:
		add("controller.newline must be escape or reject, got %q", c.Controller.Newline)
	}

	if c.Controller.MaxLineBytes < 0 {
		add("controller.max_line_bytes must not be negative")
	}
	if c.Dispatch.QueueSize < 0 {
		add("dispatch.queue_size must not be negative")
	}
	if c.Session.AuthTimeout < 0 || c.Session.SendTimeout < 0 {
		add("session timeouts must not be negative")
	}
	if c.Gateway.Enabled && (c.Gateway.Port <= 0 || c.Gateway.Port > 65535) {
		add("gateway.port %d out of range", c.Gateway.Port)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
