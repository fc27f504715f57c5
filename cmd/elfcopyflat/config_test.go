package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("allow_overlaps: true\nlog_level: debug\nserver_address: 0.0.0.0:9000\nmax_body_size: 1 MiB\nmax_image_size: 64 MiB\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AllowOverlaps == nil || !*cfg.AllowOverlaps {
		t.Fatalf("allow_overlaps not loaded: %+v", cfg)
	}
	if cfg.ZeroFill != nil {
		t.Fatalf("zero_fill should be unset")
	}
	if cfg.LogLevel != "debug" || cfg.ServerAddress != "0.0.0.0:9000" || cfg.MaxBodySize != "1 MiB" || cfg.MaxImageSize != "64 MiB" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config should not fail: %v", err)
	}
	if cfg != (Config{}) {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("allow_overlaps: [1, 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestConfigPath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(envConfig, "/from/env.yaml")
		if got := configPath("/from/flag.yaml"); got != "/from/flag.yaml" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("env overrides default", func(t *testing.T) {
		t.Setenv(envConfig, "/from/env.yaml")
		if got := configPath(""); got != "/from/env.yaml" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("user config dir", func(t *testing.T) {
		t.Setenv(envConfig, "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		t.Setenv("HOME", "/home/test")
		want := filepath.Join("/xdg", "elfcopyflat", "config.yaml")
		if dir, err := os.UserConfigDir(); err != nil || filepath.Join(dir, "elfcopyflat", "config.yaml") != want {
			t.Skip("user config dir does not follow XDG_CONFIG_HOME on this platform")
		}
		if got := configPath(""); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	})
}

func TestResolveOutput(t *testing.T) {
	t.Run("explicit output wins", func(t *testing.T) {
		t.Setenv(envOutDir, "/elsewhere")
		got, err := resolveOutput("/src/app.elf", "out/../image.bin")
		if err != nil {
			t.Fatal(err)
		}
		if got != "image.bin" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("next to input", func(t *testing.T) {
		t.Setenv(envOutDir, "")
		dir := t.TempDir()
		got, err := resolveOutput(filepath.Join(dir, "app.elf"), "")
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(dir, "app.bin"); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	})

	t.Run("env output dir", func(t *testing.T) {
		outDir := filepath.Join(t.TempDir(), "flat")
		t.Setenv(envOutDir, outDir)
		got, err := resolveOutput("/src/kernel", "")
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(outDir, "kernel.bin"); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
		if _, err := os.Stat(outDir); err != nil {
			t.Fatalf("output dir not created: %v", err)
		}
	})

	t.Run("refuses to overwrite input", func(t *testing.T) {
		t.Setenv(envOutDir, "")
		if _, err := resolveOutput(filepath.Join(t.TempDir(), "image.bin"), ""); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestServerOptions(t *testing.T) {
	opts, err := serverOptions("1 MiB", "64 MiB")
	if err != nil {
		t.Fatalf("serverOptions: %v", err)
	}
	if opts.MaxBodySize != 1<<20 || opts.MaxImageSize != 64<<20 {
		t.Fatalf("unexpected limits %+v", opts)
	}

	for _, tc := range []struct {
		body, image, flag string
	}{
		{"lots", "1 MiB", "--max-body"},
		{"1 MiB", "huge", "--max-image"},
		{"1 MiB", "0", "--max-image"},
	} {
		_, err := serverOptions(tc.body, tc.image)
		if err == nil || !strings.Contains(err.Error(), tc.flag) {
			t.Errorf("serverOptions(%q, %q) = %v, want %s error", tc.body, tc.image, err, tc.flag)
		}
	}
}
