package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config 保存 CLI 全局配置
type Config struct {
	ServerURL string `yaml:"server_url"`
	Output    string `yaml:"output"`
}

// LoadConfig 从命令行标志、环境变量、配置文件加载配置（优先级从高到低）
func LoadConfig(cmd *cobra.Command) *Config {
	cfg := &Config{}

	loadConfigFile(cfg, configFilePath())

	if v := os.Getenv("MEDIACTL_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}

	if v, _ := cmd.Flags().GetString("server-url"); v != "" {
		cfg.ServerURL = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Output = v
	}

	// 默认值
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:5000"
	}
	if cfg.Output == "" {
		cfg.Output = "text"
	}

	return cfg
}

func configFilePath() string {
	if v := os.Getenv("MEDIACTL_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mediactl", "config.yaml")
}

// loadConfigFile 读取 YAML 配置，文件不存在时忽略
func loadConfigFile(cfg *Config, path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = yaml.Unmarshal(data, cfg)
}

// addGlobalFlags 为 root 命令添加全局标志
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("server-url", "", "API base URL (env: MEDIACTL_SERVER_URL, default: http://localhost:5000)")
	cmd.PersistentFlags().StringP("output", "o", "", "output format: json / text (default: text)")
}
