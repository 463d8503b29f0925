// Package models locates the layout detection model. A gzip-compressed model
// is extracted next to the user cache once and reused afterwards.
package models

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ModelFileName is the name of the model file (after decompression)
	ModelFileName = "doclayout_yolo.onnx"
	// CompressedModelFileName is the name of the distributed compressed model
	CompressedModelFileName = "doclayout_yolo.onnx.gz"
)

// SearchDirs returns the directories searched for the model when no explicit
// path is configured: ./models, the executable's models directory and the
// user cache directory.
func SearchDirs() []string {
	dirs := []string{"models"}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "models"))
	}
	if cache, err := os.UserCacheDir(); err == nil {
		dirs = append(dirs, filepath.Join(cache, "pdf-layout-translator", "models"))
	}
	return dirs
}

// Resolve returns a usable .onnx path. An explicit path wins; a .gz path is
// extracted into extractDir. Without a path the search dirs are tried in order.
func Resolve(path string, dirs []string, extractDir string) (string, error) {
	if path != "" {
		if strings.HasSuffix(path, ".gz") {
			return ExtractGzip(path, extractDir)
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("model file not found: %w", err)
		}
		return path, nil
	}
	for _, dir := range dirs {
		plain := filepath.Join(dir, ModelFileName)
		if info, err := os.Stat(plain); err == nil && info.Size() > 0 {
			return plain, nil
		}
		gz := filepath.Join(dir, CompressedModelFileName)
		if _, err := os.Stat(gz); err == nil {
			return ExtractGzip(gz, extractDir)
		}
	}
	return "", fmt.Errorf("%s not found in %s", ModelFileName, strings.Join(dirs, ", "))
}

// DefaultExtractDir is where compressed models are unpacked
func DefaultExtractDir() string {
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, "pdf-layout-translator", "models")
	}
	return filepath.Join(os.TempDir(), "pdf-layout-translator-models")
}

// ExtractGzip ensures the compressed model is extracted to the target directory.
// Returns the path to the extracted model file.
func ExtractGzip(gzPath, targetDir string) (string, error) {
	name := strings.TrimSuffix(filepath.Base(gzPath), ".gz")
	modelPath := filepath.Join(targetDir, name)

	// 已解压则直接使用
	if info, err := os.Stat(modelPath); err == nil && info.Size() > 0 {
		return modelPath, nil
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	compressedFile, err := os.Open(gzPath)
	if err != nil {
		return "", fmt.Errorf("failed to open compressed model: %w", err)
	}
	defer compressedFile.Close()

	gzReader, err := gzip.NewReader(compressedFile)
	if err != nil {
		return "", fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	// 先写临时文件，避免并发进程读到半个模型
	tmp, err := os.CreateTemp(targetDir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create model file: %w", err)
	}
	if _, err := io.Copy(tmp, gzReader); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to extract model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to extract model: %w", err)
	}
	if err := os.Rename(tmp.Name(), modelPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move model into place: %w", err)
	}
	return modelPath, nil
}
