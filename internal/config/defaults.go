package config

import (
	"github.com/spf13/viper"
)

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	// Log 配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// 监控群组
	viper.SetDefault("group.id", "")
	viper.SetDefault("group.match", "exact")
	viper.SetDefault("group.suffix", "@g.us")

	// 转发策略
	viper.SetDefault("forward.strategy", "forward")
	viper.SetDefault("forward.ack_message", "✅ Message received")

	// 控制器通道
	viper.SetDefault("controller.transport", "stdio")
	viper.SetDefault("controller.newline", "escape")
	viper.SetDefault("controller.max_line_bytes", 1024*1024)

	viper.SetDefault("dispatch.queue_size", 256)

	// 会话客户端，时长用字符串以便原样写回 YAML
	viper.SetDefault("session.command", "node")
	viper.SetDefault("session.args", []string{})
	viper.SetDefault("session.data_dir", "~/.wabridge/session")
	viper.SetDefault("session.headless", true)
	viper.SetDefault("session.auth_timeout", "0s")
	viper.SetDefault("session.send_timeout", "0s")

	// Gateway 配置
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.port", 8090)

	viper.SetDefault("heartbeat.schedule", "")
}
