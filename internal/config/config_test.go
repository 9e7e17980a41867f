// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestConfig sets SHELLCACHE_CFG to point to a test config file and
// loads it with the given namespace.
func setupTestConfig(t *testing.T, testdataFile string, namespace ...string) {
	t.Helper()

	absPath, err := filepath.Abs(filepath.Join("testdata", testdataFile))
	require.NoError(t, err, "failed to get absolute path for test config")

	t.Setenv("SHELLCACHE_CFG", absPath)

	Config = Type{}
	t.Cleanup(func() { Config = Type{} })

	_, err = Load(namespace...)
	require.NoError(t, err)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		testFile  string
		checkFunc func(*testing.T, Type)
	}{
		{
			name:     "simple string values",
			testFile: "simple.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				assert.NotEmpty(t, cfg.Source)
				assert.Equal(t, "freqshift-v3", cfg.Data["generation"])
				assert.Equal(t, "https://freqshift.example.com", cfg.Data["origin"])
			},
		},
		{
			name:     "nested structure",
			testFile: "nested.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				store, ok := cfg.Data["store"].(map[string]interface{})
				assert.True(t, ok, "store should be a map")
				assert.Equal(t, "sqlite", store["kind"])
			},
		},
		{
			name:     "mixed types",
			testFile: "mixed-types.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				assert.Equal(t, 1, cfg.Data["version"])
				assert.Equal(t, true, cfg.Data["enabled"])
				assert.Equal(t, 30.5, cfg.Data["timeout"])
				shell, ok := cfg.Data["shell"].([]interface{})
				assert.True(t, ok)
				assert.Len(t, shell, 4)
			},
		},
		{
			name:     "empty file",
			testFile: "empty.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				// Empty YAML unmarshals to nil map, which is acceptable
				assert.NotEmpty(t, cfg.Source, "should have a source path")
				assert.Nil(t, cfg.Data)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestConfig(t, tt.testFile)
			tt.checkFunc(t, Config)
		})
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	t.Setenv("SHELLCACHE_CFG", "/nonexistent/path/shellcache.yaml")
	Config = Type{}

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_IsDirectory(t *testing.T) {
	t.Setenv("SHELLCACHE_CFG", "testdata")
	Config = Type{}

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "points to a directory")
}

func TestLoad_StandardLocation(t *testing.T) {
	dir := t.TempDir()
	src, err := filepath.Abs(filepath.Join("testdata", "simple.yaml"))
	require.NoError(t, err)
	require.NoError(t, copyFile(src, filepath.Join(dir, fileName)))

	t.Setenv("SHELLCACHE_CFG", "")
	t.Setenv("XDG_CONFIG_HOME", dir)
	Config = Type{}
	t.Cleanup(func() { Config = Type{} })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, fileName), cfg.Source)
}

func TestGetString(t *testing.T) {
	tests := []struct {
		name         string
		testFile     string
		namespace    string
		key          string
		defaultValue []string
		want         string
		wantErr      bool
	}{
		{
			name:     "simple string value",
			testFile: "simple.yaml",
			key:      "generation",
			want:     "freqshift-v3",
		},
		{
			name:     "nested string value",
			testFile: "nested.yaml",
			key:      "store.kind",
			want:     "sqlite",
		},
		{
			name:      "namespaced value wins",
			testFile:  "nested.yaml",
			namespace: "serve",
			key:       "store.kind",
			want:      "memory",
		},
		{
			name:      "namespace falls back to global",
			testFile:  "nested.yaml",
			namespace: "serve",
			key:       "store.path",
			want:      "/var/cache/shellcache.db",
		},
		{
			name:         "missing key with default",
			testFile:     "simple.yaml",
			key:          "missing",
			defaultValue: []string{"default-value"},
			want:         "default-value",
		},
		{
			name:     "missing key without default",
			testFile: "simple.yaml",
			key:      "missing",
			wantErr:  true,
		},
		{
			name:     "non-string value",
			testFile: "mixed-types.yaml",
			key:      "version",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.namespace != "" {
				setupTestConfig(t, tt.testFile, tt.namespace)
			} else {
				setupTestConfig(t, tt.testFile)
			}

			got, err := GetString(tt.key, tt.defaultValue...)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetInt(t *testing.T) {
	tests := []struct {
		name         string
		testFile     string
		key          string
		defaultValue []int
		want         int
		wantErr      bool
	}{
		{
			name:     "int value",
			testFile: "mixed-types.yaml",
			key:      "version",
			want:     1,
		},
		{
			name:     "float value converted to int",
			testFile: "mixed-types.yaml",
			key:      "timeout",
			want:     30,
		},
		{
			name:     "nested int value",
			testFile: "nested.yaml",
			key:      "cache.clean",
			want:     24,
		},
		{
			name:         "missing key with default",
			testFile:     "simple.yaml",
			key:          "missing",
			defaultValue: []int{60},
			want:         60,
		},
		{
			name:     "missing key without default",
			testFile: "simple.yaml",
			key:      "missing",
			wantErr:  true,
		},
		{
			name:     "string value",
			testFile: "simple.yaml",
			key:      "generation",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestConfig(t, tt.testFile)

			got, err := GetInt(tt.key, tt.defaultValue...)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetStringSlice(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue [][]string
		want         []string
		wantErr      bool
	}{
		{
			name: "list value",
			key:  "shell",
			want: []string{"/", "/manifest.webmanifest", "/static/icons/icon-192.png", "/static/icons/icon-512.png"},
		},
		{
			name: "scalar promoted to list",
			key:  "bypass",
			want: []string{"/result/"},
		},
		{
			name:         "missing key with default",
			key:          "missing",
			defaultValue: [][]string{{"/download/"}},
			want:         []string{"/download/"},
		},
		{
			name:    "non-string elements",
			key:     "ports",
			wantErr: true,
		},
		{
			name:    "map value",
			key:     "name.nested",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestConfig(t, "mixed-types.yaml")

			got, err := GetStringSlice(tt.key, tt.defaultValue...)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
