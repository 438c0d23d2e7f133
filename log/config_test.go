/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-validatorkit/config"
)

const fileLogConfigYAML = `
log:
  level: warn
  format: text
  output: file
  file:
    path: /var/log/validator/validator-{{pid}}.log
    rotation:
      compress: true
      maxSize: 100M
      maxBackups: 42
  addCaller: true
  error:
    noVerbose: true
    verboseSuffix: _details
`

func wantFileLogConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Level = LevelWarn
	cfg.Format = FormatText
	cfg.Output = OutputFile
	cfg.File.Path = "/var/log/validator/validator-{{pid}}.log"
	cfg.File.Rotation.MaxSize = 100 * 1024 * 1024
	cfg.File.Rotation.MaxBackups = 42
	cfg.File.Rotation.Compress = true
	cfg.AddCaller = true
	cfg.Error.NoVerbose = true
	cfg.Error.VerboseSuffix = "_details"
	return cfg
}

// yamlToJSON converts the YAML document, so both formats are checked with the same data.
func yamlToJSON(t *testing.T, data string) string {
	t.Helper()
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(data), &doc))
	jsonData, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(jsonData)
}

func TestConfig_Load(t *testing.T) {
	for _, dataType := range []config.DataType{config.DataTypeYAML, config.DataTypeJSON} {
		t.Run(string(dataType), func(t *testing.T) {
			data := fileLogConfigYAML
			if dataType == config.DataTypeJSON {
				data = yamlToJSON(t, data)
			}

			cfg := NewConfig()
			require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(data), dataType, cfg))
			require.Equal(t, wantFileLogConfig(), cfg)

			var appCfg struct {
				Log *Config `yaml:"log" json:"log"`
			}
			appCfg.Log = NewDefaultConfig()
			if dataType == config.DataTypeJSON {
				require.NoError(t, json.Unmarshal([]byte(data), &appCfg))
			} else {
				require.NoError(t, yaml.Unmarshal([]byte(data), &appCfg))
			}
			require.Equal(t, wantFileLogConfig(), appCfg.Log)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
	require.Equal(t, LevelInfo, cfg.Level)
	require.Equal(t, OutputStdout, cfg.Output)

	fromJSON := NewDefaultConfig()
	require.NoError(t, json.Unmarshal([]byte("{}"), fromJSON))
	require.Equal(t, NewDefaultConfig(), fromJSON)
}

func TestConfig_KeyPrefixAndEnv(t *testing.T) {
	t.Setenv("VALIDATOR_SVC_LOG_FORMAT", "text")

	cfg := NewConfig(WithKeyPrefix("svc.log"))
	err := config.NewDefaultLoader("validator").LoadFromReader(
		bytes.NewBufferString("svc:\n  log:\n    level: DEBUG\n    format: json\n"), config.DataTypeYAML, cfg)
	require.NoError(t, err)

	want := NewDefaultConfig(WithKeyPrefix("svc.log"))
	want.Level = LevelDebug
	want.Format = FormatText
	require.Equal(t, want, cfg)
}

func TestConfig_Errors(t *testing.T) {
	tests := map[string]string{
		"log:\n  level: trace\n":                               `log.level: unknown value "trace", should be one of [error warn info debug]`,
		"log:\n  format: xml\n":                                `log.format: unknown value "xml", should be one of [json text]`,
		"log:\n  output: syslog\n":                             `log.output: unknown value "syslog", should be one of [stdout stderr file]`,
		"log:\n  output: file\n":                               `log.file.path: cannot be empty when "file" output is used`,
		"log:\n  file:\n    rotation:\n      maxSize: 10K\n":   `log.file.rotation.maxSize: should be >= 1M`,
		"log:\n  file:\n    rotation:\n      maxBackups: 0\n":  `log.file.rotation.maxBackups: should be >= 1`,
		"log:\n  addCaller: maybe\n":                           `log.addCaller: `,
	}
	for data, wantErr := range tests {
		cfg := NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
		require.ErrorContains(t, err, wantErr, "config:\n%s", data)
	}
}
