package util

import (
	"os"
	"path/filepath"
)

// IsExist 判断文件或目录是否存在
func IsExist(path string) bool {
	_, err := os.Stat(path)
	return err == nil || os.IsExist(err)
}

// EnsureDir 确保文件所在目录存在
func EnsureDir(file string) error {
	return os.MkdirAll(filepath.Dir(file), os.ModePerm)
}
