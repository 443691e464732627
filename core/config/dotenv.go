package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const dotenvFilename = ".env"

// Logger 是加载 .env 时使用的最小日志接口。
type Logger interface {
	Infof(format string, args ...any)
}

// loadDotEnv 从当前目录向上查找 .env，已存在的环境变量不会被覆盖。
func loadDotEnv(log Logger) error {
	path, err := findDotEnv(dotenvFilename)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return err
	}
	if log != nil {
		log.Infof("dotenv: 已加载 %s", path)
	}
	return nil
}

func findDotEnv(filename string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, filename)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
