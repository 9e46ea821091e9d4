package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/citeaudit/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func TestConfigKeys(t *testing.T) {
	keys := configKeys(reflect.TypeOf(model.Config{}), "")

	want := []string{"paths.reviews_dir", "adjudicate.threshold", "llm.api_key", "cache.disk_ttl", "output.verbose"}
	for _, w := range want {
		found := false
		for _, k := range keys {
			if k == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing key %s in %v", w, keys)
		}
	}
	for _, k := range keys {
		if k == "paths" || k == "llm" {
			t.Errorf("struct key %s should be expanded", k)
		}
	}
}

func TestWriteConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"

	tests := []struct {
		format string
		want   string
	}{
		{"yaml", "threshold: 0.6"},
		{"toml", "threshold = 0.6"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeConfig(&buf, cfg, tt.format); err != nil {
				t.Fatalf("writeConfig: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in output:\n%s", tt.want, buf.String())
			}
			if strings.Contains(buf.String(), "sk-secret") {
				t.Error("API key must not be printed")
			}
		})
	}

	if err := writeConfig(&bytes.Buffer{}, cfg, "ini"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestInitConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".citeaudit", "config.yaml")

	if err := initConfigFile(path); err != nil {
		t.Fatalf("initConfigFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("generated file is not valid YAML: %v", err)
	}
	if cfg.Adjudicate.Scorer != "lexical" || cfg.Resolve.TopK != 5 {
		t.Errorf("unexpected defaults: %+v", cfg.Adjudicate)
	}

	if err := initConfigFile(path); err == nil {
		t.Error("expected error when the file already exists")
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&outputDir, "out", "", "")
	cmd.Flags().IntVar(&workers, "workers", 0, "")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "")
	cmd.Flags().StringVar(&scorerName, "scorer", "", "")

	if err := cmd.Flags().Parse([]string{"--out", "audit", "--workers", "3", "--threshold", "0.75"}); err != nil {
		t.Fatal(err)
	}

	cfg := model.DefaultConfig()
	applyFlags(cmd, cfg)

	if cfg.Paths.OutputDir != "audit" {
		t.Errorf("out: got %s", cfg.Paths.OutputDir)
	}
	if cfg.Extract.Workers != 3 || cfg.Resolve.Workers != 3 || cfg.Adjudicate.Workers != 3 {
		t.Errorf("workers not applied to every stage: %+v", cfg)
	}
	if cfg.Adjudicate.Threshold != 0.75 {
		t.Errorf("threshold: got %v", cfg.Adjudicate.Threshold)
	}
	if cfg.Adjudicate.Scorer != "lexical" {
		t.Errorf("unset flag changed scorer to %s", cfg.Adjudicate.Scorer)
	}
	if cfg.Paths.ReviewsDir != "reviews" {
		t.Errorf("unset flag changed reviews dir to %s", cfg.Paths.ReviewsDir)
	}
}
