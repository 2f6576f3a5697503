package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultSprites 默认精灵池，其大小即玩家上限
var DefaultSprites = []string{"red", "blue", "brown", "yellow", "pink", "dark", "white"}

type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Net       NetConfig       `mapstructure:"net"`
	Intake    IntakeConfig    `mapstructure:"intake"`
	Spawn     SpawnConfig     `mapstructure:"spawn"`
	Sprites   []string        `mapstructure:"sprites" validate:"required,min=1,unique,dive,required"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Game      GameConfig      `mapstructure:"game"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type NetConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gte=0"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	MaxFrameBytes    int           `mapstructure:"max_frame_bytes" validate:"gte=64"`
}

type IntakeConfig struct {
	// StopOnEmptyHandshake 客户端未报名字就断开时停止接入（旧客户端以此表示可以开始）
	StopOnEmptyHandshake bool `mapstructure:"stop_on_empty_handshake"`
}

type SpawnConfig struct {
	Min int `mapstructure:"min" validate:"gte=0"`
	Max int `mapstructure:"max" validate:"gtefield=Min"`
}

type BroadcastConfig struct {
	// MinInterval 同一玩家两帧状态的最小间隔，0 表示不限速
	MinInterval time.Duration `mapstructure:"min_interval" validate:"gte=0"`
}

type GameConfig struct {
	Step              int           `mapstructure:"step" validate:"gt=0"`
	ArenaSize         int           `mapstructure:"arena_size" validate:"gt=0"`
	TagRadius         int           `mapstructure:"tag_radius" validate:"gte=0"`
	PassCooldown      time.Duration `mapstructure:"pass_cooldown" validate:"gte=0"`
	Fuse              time.Duration `mapstructure:"fuse" validate:"gte=0"`
	TickInterval      time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	EndOnLastSurvivor bool          `mapstructure:"end_on_last_survivor"`
}

type AdminConfig struct {
	Addr          string        `mapstructure:"addr"`
	WatchInterval time.Duration `mapstructure:"watch_interval" validate:"gt=0"`
}

// DefaultConfig 默认配置：端口 9999，出生点 100..700
func DefaultConfig() Config {
	return Config{
		Host:     "",
		Port:     9999,
		LogFile:  "chasingyou.log",
		LogLevel: "info",
		Net: NetConfig{
			HandshakeTimeout: 5 * time.Second,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     5 * time.Second,
			MaxFrameBytes:    64 << 10,
		},
		Spawn:     SpawnConfig{Min: 100, Max: 700},
		Sprites:   append([]string(nil), DefaultSprites...),
		Broadcast: BroadcastConfig{MinInterval: 0},
		Game: GameConfig{
			Step:              10,
			ArenaSize:         800,
			TagRadius:         40,
			PassCooldown:      time.Second,
			Fuse:              20 * time.Second,
			TickInterval:      100 * time.Millisecond,
			EndOnLastSurvivor: true,
		},
		Admin: AdminConfig{
			Addr:          "127.0.0.1:9980",
			WatchInterval: 100 * time.Millisecond,
		},
	}
}

// Addr 玩家连接的 TCP 地址；Host 为空时取本机主机名对应的地址
func (c Config) Addr() string {
	host := c.Host
	if host == "" {
		host = LocalAddress()
	}
	return net.JoinHostPort(host, fmt.Sprint(c.Port))
}

func (c Config) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LocalAddress 解析本机主机名，失败时回退到回环地址
func LocalAddress() string {
	name, err := os.Hostname()
	if err != nil {
		return "127.0.0.1"
	}
	addrs, err := net.LookupHost(name)
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a
		}
	}
	return "127.0.0.1"
}

// LoadConfig 合并配置，优先级从低到高：
// 默认值 → 配置文件（工作目录下 chasingyou.yaml/json/toml 或 --config）
// → CHASINGYOU_* 环境变量 → 命令行参数
func LoadConfig(args []string) (*Config, error) {
	def := DefaultConfig()

	fs := pflag.NewFlagSet("chasingyou", pflag.ContinueOnError)
	cfgFile := fs.String("config", "", "config file path")
	fs.String("host", def.Host, "listen host (empty: local hostname address)")
	fs.Int("port", def.Port, "listen port")
	fs.String("log-level", def.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-file", def.LogFile, "rotating log file (empty: stderr only)")
	fs.String("admin-addr", def.Admin.Addr, "admin HTTP address (empty: disabled)")
	fs.Duration("broadcast-interval", def.Broadcast.MinInterval, "minimum interval between state frames (0: unthrottled)")
	fs.Duration("fuse", def.Game.Fuse, "bomb fuse")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, def)

	for key, flag := range map[string]string{
		"host":                   "host",
		"port":                   "port",
		"log_level":              "log-level",
		"log_file":               "log-file",
		"admin.addr":             "admin-addr",
		"broadcast.min_interval": "broadcast-interval",
		"game.fuse":              "fuse",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix("CHASINGYOU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *cfgFile != "" {
		v.SetConfigFile(*cfgFile)
	} else {
		v.SetConfigName("chasingyou")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("host", c.Host)
	v.SetDefault("port", c.Port)
	v.SetDefault("log_file", c.LogFile)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("net.handshake_timeout", c.Net.HandshakeTimeout)
	v.SetDefault("net.read_timeout", c.Net.ReadTimeout)
	v.SetDefault("net.write_timeout", c.Net.WriteTimeout)
	v.SetDefault("net.max_frame_bytes", c.Net.MaxFrameBytes)
	v.SetDefault("intake.stop_on_empty_handshake", c.Intake.StopOnEmptyHandshake)
	v.SetDefault("spawn.min", c.Spawn.Min)
	v.SetDefault("spawn.max", c.Spawn.Max)
	v.SetDefault("sprites", c.Sprites)
	v.SetDefault("broadcast.min_interval", c.Broadcast.MinInterval)
	v.SetDefault("game.step", c.Game.Step)
	v.SetDefault("game.arena_size", c.Game.ArenaSize)
	v.SetDefault("game.tag_radius", c.Game.TagRadius)
	v.SetDefault("game.pass_cooldown", c.Game.PassCooldown)
	v.SetDefault("game.fuse", c.Game.Fuse)
	v.SetDefault("game.tick_interval", c.Game.TickInterval)
	v.SetDefault("game.end_on_last_survivor", c.Game.EndOnLastSurvivor)
	v.SetDefault("admin.addr", c.Admin.Addr)
	v.SetDefault("admin.watch_interval", c.Admin.WatchInterval)
}
