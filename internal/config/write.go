// write.go serializes a validated Matrix back into the envmatrix YAML
// format. This backs the `envmatrix convert` command, which lets a project
// move from tox.ini to envmatrix.yaml without hand-editing.
//
// The output is fully expanded: [testenv] inheritance and {[section]key}
// references are already resolved, so every environment lists its own
// deps and commands.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

// FromMatrix converts a Matrix into its RawConfig form.
func FromMatrix(m *model.Matrix) *RawConfig {
	raw := &RawConfig{
		EnvList: append([]string(nil), m.EnvList...),
	}

	for i := range m.Environments {
		env := &m.Environments[i]
		re := RawEnv{
			Name:        env.Name,
			Description: env.Description,
			Deps:        env.DepSpecs(),
			Commands:    append([]string(nil), env.Commands...),
			SetEnv:      env.SetEnv,
			ChangeDir:   env.ChangeDir,
			BasePython:  env.BasePython,
		}
		if env.IgnoreErrors {
			v := true
			re.IgnoreErrors = &v
		}
		raw.Environments = append(raw.Environments, re)
	}

	for _, b := range m.Versions {
		raw.Versions = append(raw.Versions, RawVersion{Version: b.Version, Envs: append([]string(nil), b.Envs...)})
	}

	if m.Lint.MaxLineLength > 0 || len(m.Lint.PerFileIgnores) > 0 {
		f8 := &RawFlake8{MaxLineLength: m.Lint.MaxLineLength}
		for _, r := range m.Lint.PerFileIgnores {
			f8.PerFileIgnores = append(f8.PerFileIgnores, RawLintIgnore{Glob: r.Glob, Codes: append([]string(nil), r.Codes...)})
		}
		raw.Flake8 = f8
	}

	if len(m.Coverage.ExcludeLines) > 0 || len(m.Coverage.Omit) > 0 {
		raw.Coverage = &RawCoverage{
			ExcludeLines: append([]string(nil), m.Coverage.ExcludeLines...),
			Omit:         append([]string(nil), m.Coverage.Omit...),
		}
	}

	return raw
}

// MarshalYAML renders the matrix as an envmatrix.yaml document with a
// header comment naming the file it was generated from.
func MarshalYAML(m *model.Matrix) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Generated by envmatrix convert from %s\n", filepath.Base(m.Source))

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(FromMatrix(m)); err != nil {
		return nil, fmt.Errorf("failed to serialize matrix as YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to serialize matrix as YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes data to outputPath, creating parent directories.
func WriteFile(outputPath string, data []byte) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}
