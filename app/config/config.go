package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Processing ProcessingConfig `mapstructure:"processing"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

type StorageConfig struct {
	UploadDir    string `mapstructure:"upload_dir"`    // 视频文件存放目录
	MaxUploadMB  int    `mapstructure:"max_upload_mb"` // 单文件上传大小限制（MB）
	WatchEnabled bool   `mapstructure:"watch_enabled"` // 是否监控上传目录的文件删除
}

type ProcessingConfig struct {
	StageDelay    time.Duration `mapstructure:"stage_delay"`    // 每个分析阶段的模拟耗时
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`    // ffmpeg 可执行文件路径
	FFprobePath   string        `mapstructure:"ffprobe_path"`   // ffprobe 可执行文件路径
	ToolTimeout   time.Duration `mapstructure:"tool_timeout"`   // 外部工具调用超时
	SweepInterval string        `mapstructure:"sweep_interval"` // 僵尸任务清理的 cron 表达式
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "streamvault")

	// 存储默认配置
	viper.SetDefault("storage.upload_dir", "data/uploads")
	viper.SetDefault("storage.max_upload_mb", 500)
	viper.SetDefault("storage.watch_enabled", true)

	// 处理管线默认配置
	viper.SetDefault("processing.stage_delay", "2s")
	viper.SetDefault("processing.ffmpeg_path", "ffmpeg")
	viper.SetDefault("processing.ffprobe_path", "ffprobe")
	viper.SetDefault("processing.tool_timeout", "30s")
	viper.SetDefault("processing.sweep_interval", "@every 5m")
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Storage.UploadDir == "" {
		return fmt.Errorf("上传目录未设置")
	}
	if config.Processing.StageDelay <= 0 {
		return fmt.Errorf("分析阶段耗时必须大于0")
	}
	return nil
}
