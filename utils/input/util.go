package input

import (
	"os"
)

// resolveCacheDir 检查缓存目录，不可用时返回空字符串（禁用缓存）
func resolveCacheDir(cacheDir string) string {
	if cacheDir == "" {
		log.Info("disable input cache")
		return ""
	}
	stat, err := os.Stat(cacheDir)
	if err != nil || !stat.IsDir() {
		log.Errorf("disable input cache: %s is not a directory", cacheDir)
		return ""
	}
	log.Debugf("input cache at %s", cacheDir)
	return cacheDir
}
