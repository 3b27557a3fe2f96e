// Package daemon loads the configuration of the jobwatch daemon from its
// YAML config file, JOBWATCH_* environment variables and CLI flags.
package daemon

import (
	"encoding"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/goccy/go-yaml"
	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/jobwatch/jobwatch/internal"
	"github.com/jobwatch/jobwatch/internal/hnclient"
	"github.com/jobwatch/jobwatch/internal/logging"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

const (
	ExitSuccess = 0
	ExitFailure = 1
)

// envPrefix of the environment variables overriding the config file.
const envPrefix = "JOBWATCH"

type ConfigFile struct {
	Listen       string                    `yaml:"listen" default:"localhost:5680"`
	DatabasePath string                    `yaml:"database-path" default:"jobwatch.db"`
	ChannelsDir  string                    `yaml:"channels-dir"`
	Sync         SyncConfig                `yaml:"sync"`
	Logging      LoggingConfig             `yaml:"logging"`
	Channels     map[string]map[string]any `yaml:"channels"`
}

// SetDefaults implements the defaults.Setter interface.
func (c *ConfigFile) SetDefaults() {
	if defaults.CanUpdate(c.ChannelsDir) {
		c.ChannelsDir = internal.LibExecDir + "/jobwatch/channels"
	}
}

// Validate validates the entire daemon configuration on daemon startup.
func (c *ConfigFile) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address must not be empty")
	}
	if c.DatabasePath == "" {
		return errors.New("database path must not be empty")
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}

	return nil
}

// SyncConfig steers how the hiring thread is fetched.
type SyncConfig struct {
	// Thread pins the hiring thread by ID or URL instead of discovering the
	// newest one via the whoishiring account.
	Thread        string        `yaml:"thread"`
	Interval      time.Duration `yaml:"interval" default:"15m"`
	RRule         string        `yaml:"rrule"`
	Timezone      string        `yaml:"timezone" default:"UTC"`
	Limit         int           `yaml:"limit"`
	MaxConcurrent int           `yaml:"max-concurrent" default:"10"`
	Delay         time.Duration `yaml:"delay" default:"100ms"`
	BaseURL       string        `yaml:"base-url"`
}

// SetDefaults implements the defaults.Setter interface.
func (c *SyncConfig) SetDefaults() {
	if defaults.CanUpdate(c.BaseURL) {
		c.BaseURL = hnclient.DefaultBaseURL
	}
}

func (c *SyncConfig) Validate() error {
	if c.Interval <= 0 {
		return errors.New("sync interval must be positive")
	}
	if c.MaxConcurrent < 1 {
		return errors.New("sync max-concurrent must be at least 1")
	}
	if c.Delay < 0 {
		return errors.New("sync delay must not be negative")
	}
	if c.Limit < 0 {
		return errors.New("sync limit must not be negative")
	}

	return nil
}

// LoggingConfig mirrors the arguments of logging.NewLogging.
type LoggingConfig struct {
	Level   zapcore.Level   `yaml:"level" default:"info"`
	Output  string          `yaml:"output"`
	Options logging.Options `yaml:"options"`
}

func (c *LoggingConfig) Validate() error {
	switch c.Output {
	case "", logging.CONSOLE, logging.JSON:
		return nil
	default:
		return fmt.Errorf("invalid logging output %q", c.Output)
	}
}

// Assert interface compliance.
var (
	_ defaults.Setter = (*ConfigFile)(nil)
	_ defaults.Setter = (*SyncConfig)(nil)
)

// Flags defines the CLI flags supported by the jobwatch daemon.
type Flags struct {
	// Version decides whether to just print the version and exit.
	Version bool `long:"version" description:"print version and exit"`
	// Config is the path to the config file.
	Config string `short:"c" long:"config" description:"path to config file"`
}

// ParseFlags parses the CLI flags into target, printing the help output and
// exiting directly when it was requested.
func ParseFlags(target any) error {
	parser := flags.NewParser(target, flags.Default^flags.PrintErrors)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, flagsErr)
			os.Exit(ExitSuccess)
		}

		return errors.Wrap(err, "cannot parse CLI flags")
	}

	return nil
}

// ParseFlagsAndConfig parses the CLI flags provided to the executable and
// tries to load the config from the YAML file, falling back to defaults when
// the default config file does not exist.
//
// Prints any error during parsing or config loading to os.Stderr and exits,
// otherwise returns the loaded ConfigFile.
func ParseFlagsAndConfig() *ConfigFile {
	defaultConfigPath := internal.SysConfDir + "/jobwatch/config.yml"

	parsedFlags := Flags{Config: defaultConfigPath}
	if err := ParseFlags(&parsedFlags); err != nil {
		printErrorThenExit(err, ExitFailure)
	}

	if parsedFlags.Version {
		internal.Version.Print("Jobwatch")
		os.Exit(ExitSuccess)
	}

	// A .env file in the working directory feeds the JOBWATCH_* variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		printErrorThenExit(err, ExitFailure)
	}

	var yamlReader io.Reader
	if f, err := os.Open(parsedFlags.Config); err == nil {
		defer func() { _ = f.Close() }()
		yamlReader = f
	} else if os.IsNotExist(err) && parsedFlags.Config == defaultConfigPath {
		yamlReader = strings.NewReader("")
	} else {
		printErrorThenExit(err, ExitFailure)
	}

	cfg, err := loadConfig(yamlReader, os.Environ())
	if err != nil {
		printErrorThenExit(err, ExitFailure)
	}

	if err := cfg.Validate(); err != nil {
		printErrorThenExit(errors.Wrap(err, "invalid configuration"), ExitFailure)
	}

	return cfg
}

// loadConfig builds the ConfigFile by applying defaults, the YAML file and
// the environment variables, in that order.
func loadConfig(yamlReader io.Reader, environ []string) (*ConfigFile, error) {
	cfg := new(ConfigFile)
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}

	if err := yaml.NewDecoder(yamlReader).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := PopulateFromYamlEnvironment(envPrefix, cfg, environ); err != nil {
		return nil, err
	}

	return cfg, nil
}

func printErrorThenExit(err error, exitCode int) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(exitCode)
}

// PopulateFromYamlEnvironment fills target - a pointer to a struct with yaml
// tags - from environment variables prefixed with prefix plus an underscore.
//
// The remainder of the variable name is matched case-insensitively against
// the yaml tags, with underscores descending into nested structs, e.g.
// PREFIX_SYNC_MAX-CONCURRENT addresses the max-concurrent field of the sync
// struct. Inlined structs are flattened, single quotes around values are
// stripped. Variables without the prefix are ignored, a prefixed variable
// matching no field is an error.
func PopulateFromYamlEnvironment(prefix string, target any, environ []string) error {
	prefix += "_"

	for _, env := range environ {
		key, value, found := strings.Cut(env, "=")
		if !found || !strings.HasPrefix(key, prefix) {
			continue
		}

		path := strings.Split(strings.TrimPrefix(key, prefix), "_")
		value = strings.TrimSuffix(strings.TrimPrefix(value, "'"), "'")

		if err := setYamlPath(reflect.ValueOf(target).Elem(), path, value); err != nil {
			return fmt.Errorf("cannot apply %q: %w", key, err)
		}
	}

	return nil
}

// setYamlPath descends along path through the yaml tags of nested structs
// and sets the addressed leaf field to value.
func setYamlPath(structVal reflect.Value, path []string, value string) error {
	field, err := fieldByYamlTag(structVal, path[0])
	if err != nil {
		return err
	}

	if len(path) > 1 {
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("key %q does not address a struct", path[0])
		}

		return setYamlPath(field, path[1:], value)
	}

	return setYamlValue(field, value)
}

// fieldByYamlTag finds the field of structVal whose yaml tag matches name
// case-insensitively, looking through inlined structs.
func fieldByYamlTag(structVal reflect.Value, name string) (reflect.Value, error) {
	structType := structVal.Type()
	for i := 0; i < structType.NumField(); i++ {
		tag := structType.Field(i).Tag.Get("yaml")
		tagName, opts, _ := strings.Cut(tag, ",")

		if tagName == "" && strings.Contains(opts, "inline") {
			if field, err := fieldByYamlTag(structVal.Field(i), name); err == nil {
				return field, nil
			}
			continue
		}

		if tagName != "" && strings.EqualFold(tagName, name) {
			return structVal.Field(i), nil
		}
	}

	return reflect.Value{}, fmt.Errorf("no config field with yaml tag %q", strings.ToLower(name))
}

// setYamlValue parses value into the leaf field, honoring
// encoding.TextUnmarshaler implementations like zapcore.Level and falling
// back to a YAML unmarshal for compound fields.
func setYamlValue(field reflect.Value, value string) error {
	if field.CanAddr() {
		if unmarshaler, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return unmarshaler.UnmarshalText([]byte(value))
		}
	}

	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return err
		}

		field.SetInt(int64(duration))
		return nil
	}

	switch field.Kind() {
	case reflect.Bool:
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(parsed)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(parsed)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(parsed)
	case reflect.Float32, reflect.Float64:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(parsed)
	case reflect.String:
		field.SetString(value)
	default:
		return yaml.Unmarshal([]byte(value), field.Addr().Interface())
	}

	return nil
}
