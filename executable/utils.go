package executable

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
)

// isTTY returns true if the object is a tty
func isTTY(o any) bool {
	file, ok := o.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(file.Fd())
}

// resolveAbsolutePath resolves the path according the following rules:
// 1. If the 'path' is found on PATH (or is a path to an executable), its absolute path is returned
// 2. Otherwise, the path is made absolute relative to the working directory
func resolveAbsolutePath(path string) (string, error) {
	executablePath, err := exec.LookPath(path)
	if err != nil {
		return filepath.Abs(path)
	}

	// LookPath returns relative paths as-is
	return filepath.Abs(executablePath)
}

// resolveExecutable returns the absolute path of an executable file, or an
// error naming what is wrong with it. A relative path with a directory part
// is taken relative to workingDir when one is given, as exec.Cmd does with Dir.
func resolveExecutable(path string, workingDir string) (string, error) {
	lookupPath := path
	if workingDir != "" && !filepath.IsAbs(path) && strings.ContainsRune(path, filepath.Separator) {
		lookupPath = filepath.Join(workingDir, path)
	}

	absolutePath, err := resolveAbsolutePath(lookupPath)
	if err != nil {
		return "", fmt.Errorf("%s not found", filepath.Base(path))
	}

	fileInfo, err := os.Stat(absolutePath)
	if err != nil {
		return "", fmt.Errorf("%s not found", filepath.Base(path))
	}

	if !isExecutableFile(fileInfo) {
		return "", fmt.Errorf("%s (resolved to %s) is not an executable file", path, absolutePath)
	}

	return absolutePath, nil
}

// mergeEnv appends overrides to base. exec.Cmd keeps the last value of a
// duplicated key, so overrides win over inherited values.
func mergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	env = append(env, base...)

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		env = append(env, key+"="+overrides[key])
	}

	return env
}
