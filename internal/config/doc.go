// Package config handles discovery, parsing and validation of environment
// matrix configuration files.
//
// Three formats decode into the same RawConfig structure:
//   - tox.ini, parsed with gopkg.in/ini.v1 using Python-style multi-line values
//   - envmatrix.yaml / envmatrix.yml, parsed with gopkg.in/yaml.v3
//   - envmatrix.jsonc / envmatrix.json, comments stripped with
//     github.com/tidwall/jsonc before encoding/json decoding
//
// Build turns a RawConfig into a validated model.Matrix. All referential
// integrity checks (unknown environment names in the envlist or the
// version mapping, duplicate declarations, invalid globs) happen there, so
// nothing executes against a broken configuration.
package config
