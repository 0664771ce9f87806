package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// SerialConfig 矩阵链路配置
// Device 取值：串口设备路径（/dev/ttyUSB0、COM3）、tcp://host:port（串口服务器）、sim://（内置模拟器）
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
}

// MatrixConfig 矩阵与命令调度配置
type MatrixConfig struct {
	MaxPorts        int           `mapstructure:"maxPorts"`
	ResponseTimeout time.Duration `mapstructure:"responseTimeout"`
	// CommandRate 每秒最多下发的命令数，<=0 表示不限速
	CommandRate   float64 `mapstructure:"commandRate"`
	CommandBurst  int     `mapstructure:"commandBurst"`
	DrainOnDesync bool    `mapstructure:"drainOnDesync"`
	PresetsFile   string  `mapstructure:"presetsFile"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// DatabaseConfig PostgreSQL 连接配置（命令日志），DSN 为空时不启用
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// APIAuthConfig API Key 认证
type APIAuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Keys    []string `mapstructure:"keys"`
}

// APIConfig 控制接口配置
type APIConfig struct {
	Auth APIAuthConfig `mapstructure:"auth"`
}

// Config 顶层配置结构
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Matrix   MatrixConfig   `mapstructure:"matrix"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	API      APIConfig      `mapstructure:"api"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 HDMX_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 HDMX_，并将点号替换为下划线
	v.SetEnvPrefix("HDMX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.Matrix.MaxPorts < 1 || c.Matrix.MaxPorts > 255 {
		return fmt.Errorf("matrix.maxPorts %d outside 1-255", c.Matrix.MaxPorts)
	}
	if c.Matrix.ResponseTimeout <= 0 {
		return fmt.Errorf("matrix.responseTimeout must be positive, got %s", c.Matrix.ResponseTimeout)
	}
	if c.Serial.Device == "" {
		return errors.New("serial.device is required")
	}
	if c.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("serial.readTimeout must be positive, got %s", c.Serial.ReadTimeout)
	}
	if c.Matrix.CommandRate > 0 && c.Matrix.CommandBurst < 1 {
		return fmt.Errorf("matrix.commandBurst must be >= 1 when commandRate is set")
	}
	if c.API.Auth.Enabled && len(c.API.Auth.Keys) == 0 {
		return errors.New("api.auth.enabled requires at least one key")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hdmi-matrix")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "15s")

	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud", 19200)
	v.SetDefault("serial.readTimeout", "100ms")
	v.SetDefault("serial.dialTimeout", "5s")

	v.SetDefault("matrix.maxPorts", 4)
	v.SetDefault("matrix.responseTimeout", "2s")
	v.SetDefault("matrix.commandRate", 10)
	v.SetDefault("matrix.commandBurst", 1)
	v.SetDefault("matrix.drainOnDesync", true)
	v.SetDefault("matrix.presetsFile", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/hdmi-matrix.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxOpenConns", 5)
	v.SetDefault("database.maxIdleConns", 2)
	v.SetDefault("database.connMaxLifetime", "1h")

	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.auth.keys", []string{})
}
