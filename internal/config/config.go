package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

// Format identifies the syntax of a configuration file.
type Format string

const (
	FormatINI  Format = "ini"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// CandidateNames lists the file names FindConfig looks for, in priority
// order. envmatrix's own files win over tox.ini so a project can migrate
// incrementally with `envmatrix convert`.
var CandidateNames = []string{
	"envmatrix.yaml",
	"envmatrix.yml",
	"envmatrix.jsonc",
	"envmatrix.json",
	"tox.ini",
}

// DetectFormat infers the file format from its extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".cfg":
		return FormatINI, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json", ".jsonc":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported configuration file extension %q (expected .ini, .yaml, .yml, .json or .jsonc)", filepath.Ext(path))
	}
}

// Load reads and decodes a configuration file into a RawConfig.
// It performs no validation beyond syntax; call Build for that.
func Load(path string) (*RawConfig, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "cannot load configuration", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitConfigNotFound,
				fmt.Sprintf("configuration file not found: %s", path),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return Parse(data, format, path)
}

// Parse decodes configuration bytes of the given format. source is only
// used in error messages.
func Parse(data []byte, format Format, source string) (*RawConfig, error) {
	var raw *RawConfig
	var err error

	switch format {
	case FormatINI:
		raw, err = parseINI(data)
	case FormatYAML:
		raw = &RawConfig{}
		err = yaml.Unmarshal(data, raw)
	case FormatJSON:
		// Strip JSONC comments and trailing commas before handing the
		// document to encoding/json.
		raw = &RawConfig{}
		err = json.Unmarshal(jsonc.ToJSON(data), raw)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, &model.ConfigError{Source: source, Message: "failed to parse configuration", Err: err}
	}
	return raw, nil
}

// FindConfig searches dir and its parents for a configuration file.
// The search stops after stopAt (typically the git repository root);
// an empty stopAt searches up to the filesystem root.
func FindConfig(dir, stopAt string) (string, error) {
	start, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if stopAt != "" {
		if stopAt, err = filepath.Abs(stopAt); err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", stopAt, err)
		}
	}

	current := start
	for {
		for _, name := range CandidateNames {
			path := filepath.Join(current, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(current)
		if current == stopAt || parent == current {
			break
		}
		current = parent
	}

	return "", model.NewCLIError(
		model.ExitConfigNotFound,
		fmt.Sprintf("no configuration file found in %s or its parents (searched %s)", start, strings.Join(CandidateNames, ", ")),
	)
}

// LoadMatrix is the common entry point: Load followed by Build.
func LoadMatrix(path string) (*model.Matrix, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	raw, err := Load(abs)
	if err != nil {
		return nil, err
	}
	return Build(raw, abs)
}
