package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服务器与客户端共用的配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Net     NetConfig     `yaml:"net"`
	Room    RoomConfig    `yaml:"room"`
	Log     LogConfig     `yaml:"log"`
	Journal JournalConfig `yaml:"journal"`
}

// ServerConfig 监听相关
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	Protocol    string `yaml:"protocol"` // tcp | kcp | ws
	WSPath      string `yaml:"ws_path"`
	MetricsAddr string `yaml:"metrics_addr"` // 为空则不暴露指标
}

// NetConfig 网络同步参数，帧数均以 60Hz 逻辑帧计
type NetConfig struct {
	LedgerCapacity         int     `yaml:"ledger_capacity"`
	LagCompensationFrames  uint64  `yaml:"lag_compensation_frames"`
	InterpolationDelay     uint64  `yaml:"interpolation_delay"`
	MaxFutureFrames        uint64  `yaml:"max_future_frames"`
	HeartbeatIntervalTicks uint64  `yaml:"heartbeat_interval_ticks"`
	HeartbeatTimeoutTicks  uint64  `yaml:"heartbeat_timeout_ticks"`
	HeartbeatLagTicks      uint64  `yaml:"heartbeat_lag_ticks"`
	NetStatusIntervalTicks uint64  `yaml:"net_status_interval_ticks"`
	PauseLagFrames         float64 `yaml:"pause_lag_frames"`
	ResumeLagFrames        float64 `yaml:"resume_lag_frames"`
	InboundRate            float64 `yaml:"inbound_rate"`
	InboundBurst           int     `yaml:"inbound_burst"`
	SendQueue              int     `yaml:"send_queue"`
}

// RoomConfig 房间与玩法参数
type RoomConfig struct {
	MaxPlayers                 int           `yaml:"max_players"`
	MonsterSpawnIntervalFrames uint64        `yaml:"monster_spawn_interval_frames"`
	MaxMonsters                int           `yaml:"max_monsters"`
	SessionTTL                 time.Duration `yaml:"session_ttl"`
}

// LogConfig 日志
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// JournalConfig 对局记录，Dir 为空时关闭
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// Default 默认配置
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:     ":8080",
			Protocol: "tcp",
			WSPath:   "/ws",
		},
		Net: NetConfig{
			LedgerCapacity:         600,
			LagCompensationFrames:  60,
			InterpolationDelay:     10,
			MaxFutureFrames:        30,
			HeartbeatIntervalTicks: 30,
			HeartbeatTimeoutTicks:  600,
			HeartbeatLagTicks:      120,
			NetStatusIntervalTicks: 60,
			PauseLagFrames:         45,
			ResumeLagFrames:        15,
			InboundRate:            240,
			InboundBurst:           480,
			SendQueue:              256,
		},
		Room: RoomConfig{
			MaxPlayers:                 4,
			MonsterSpawnIntervalFrames: 180,
			MaxMonsters:                12,
			SessionTTL:                 5 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load 在默认配置之上叠加 YAML 文件；path 为空时只返回默认值
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate 检查参数之间的约束
func (c Config) Validate() error {
	var errs []error
	switch c.Server.Protocol {
	case "tcp", "kcp", "ws":
	default:
		errs = append(errs, fmt.Errorf("server.protocol: unsupported %q", c.Server.Protocol))
	}
	n := c.Net
	if n.LedgerCapacity < 2 {
		errs = append(errs, errors.New("net.ledger_capacity: must be at least 2"))
	}
	if n.LagCompensationFrames == 0 || 2*n.LagCompensationFrames >= uint64(n.LedgerCapacity) {
		errs = append(errs, errors.New("net.lag_compensation_frames: must be positive and less than half the ledger capacity"))
	}
	if n.InterpolationDelay > n.MaxFutureFrames {
		errs = append(errs, errors.New("net.interpolation_delay: must not exceed max_future_frames"))
	}
	if n.HeartbeatIntervalTicks == 0 || n.HeartbeatTimeoutTicks <= n.HeartbeatIntervalTicks {
		errs = append(errs, errors.New("net.heartbeat_timeout_ticks: must exceed heartbeat_interval_ticks"))
	}
	if n.HeartbeatLagTicks <= n.HeartbeatIntervalTicks || n.HeartbeatLagTicks >= n.HeartbeatTimeoutTicks {
		errs = append(errs, errors.New("net.heartbeat_lag_ticks: must lie between the heartbeat interval and timeout"))
	}
	if n.ResumeLagFrames > n.PauseLagFrames {
		errs = append(errs, errors.New("net.resume_lag_frames: must not exceed pause_lag_frames"))
	}
	if n.InboundRate <= 0 || n.InboundBurst <= 0 {
		errs = append(errs, errors.New("net.inbound_rate/inbound_burst: must be positive"))
	}
	if n.SendQueue <= 0 {
		errs = append(errs, errors.New("net.send_queue: must be positive"))
	}
	if c.Room.MaxPlayers < 1 || c.Room.MaxPlayers > 4 {
		errs = append(errs, errors.New("room.max_players: must be between 1 and 4"))
	}
	if c.Room.SessionTTL <= 0 {
		errs = append(errs, errors.New("room.session_ttl: must be positive"))
	}
	return errors.Join(errs...)
}
