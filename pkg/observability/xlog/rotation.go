package xlog

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultMaxSizeMB 单个日志文件默认最大大小（MB）
const DefaultMaxSizeMB = 100

// RotationConfig 基于文件大小的轮转配置。
//
// MaxSizeMB 为 0 时使用 DefaultMaxSizeMB；MaxBackups、MaxAgeDays 为 0
// 表示不按该维度清理旧文件。
type RotationConfig struct {
	MaxSizeMB  int  `koanf:"max_size_mb" json:"max_size_mb"`
	MaxBackups int  `koanf:"max_backups" json:"max_backups"`
	MaxAgeDays int  `koanf:"max_age_days" json:"max_age_days"`
	Compress   bool `koanf:"compress" json:"compress"`
	LocalTime  bool `koanf:"local_time" json:"local_time"`
}

func (c RotationConfig) withDefaults() RotationConfig {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = DefaultMaxSizeMB
	}
	c.MaxBackups = max(c.MaxBackups, 0)
	c.MaxAgeDays = max(c.MaxAgeDays, 0)
	return c
}

// newRotator 创建 lumberjack 写入器。文件在首次写入时才会打开。
func newRotator(filename string, cfg RotationConfig) (*lumberjack.Logger, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return nil, ErrEmptyFilename
	}
	if strings.HasSuffix(name, string(filepath.Separator)) {
		return nil, fmt.Errorf("xlog: rotation filename %q is a directory", filename)
	}
	cfg = cfg.withDefaults()
	return &lumberjack.Logger{
		Filename:   filepath.Clean(name),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	}, nil
}
