// Package mintconf loads the configuration shared by the monitor and worker
// binaries: a TOML file decoded with the same field-matching rules the
// original node config used, overlaid with environment variables.
package mintconf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/kelseyhightower/envconfig"
	"github.com/naoina/toml"
)

// Monitor holds every setting the monitor binary needs.
type Monitor struct {
	WatchedAddress   string        `toml:",omitempty" envconfig:"WATCHED_ADDRESS"`
	ExplorerBaseURL  string        `toml:",omitempty" envconfig:"EXPLORER_BASE_URL"`
	DBPath           string        `toml:",omitempty" envconfig:"DB_PATH"`
	HTTPAddr         string        `toml:",omitempty" envconfig:"HTTP_ADDR"`
	LogPath          string        `toml:",omitempty" envconfig:"LOG_PATH"`
	PollInterval     time.Duration `toml:",omitempty" envconfig:"POLL_INTERVAL"`
	UpstreamTimeout  time.Duration `toml:",omitempty" envconfig:"UPSTREAM_TIMEOUT"`
	RetentionHorizon time.Duration `toml:",omitempty" envconfig:"RETENTION_HORIZON"`
}

// Worker holds every setting the worker binary needs.
type Worker struct {
	ServerURL       string        `toml:",omitempty" envconfig:"SERVER_URL"`
	HTTPAddr        string        `toml:",omitempty" envconfig:"HTTP_ADDR"`
	LogPath         string        `toml:",omitempty" envconfig:"LOG_PATH"`
	JournalPath     string        `toml:",omitempty" envconfig:"JOURNAL_PATH"`
	WorkerInterval  time.Duration `toml:",omitempty" envconfig:"WORKER_INTERVAL"`
	MaxRetries      int           `toml:",omitempty" envconfig:"MAX_RETRIES"`
	RetryBackoff    time.Duration `toml:",omitempty" envconfig:"RETRY_BACKOFF"`
	InterDispatch   time.Duration `toml:",omitempty" envconfig:"INTER_DISPATCH"`
	InscriptionTool string        `toml:",omitempty" envconfig:"INSCRIPTION_TOOL"`
}

// DefaultMonitor returns the Monitor config's baseline defaults, applied
// before the TOML file and environment overrides.
func DefaultMonitor() Monitor {
	return Monitor{
		ExplorerBaseURL: "https://blockstream.info/api",
		DBPath:          "monitor.db",
		HTTPAddr:        ":8080",
		LogPath:         "monitor.log",
		PollInterval:    10 * time.Second,
		UpstreamTimeout: 5 * time.Second,
	}
}

// DefaultWorker returns the Worker config's baseline defaults, applied
// before the TOML file and environment overrides.
func DefaultWorker() Worker {
	return Worker{
		ServerURL:       "http://127.0.0.1:8080",
		HTTPAddr:        ":8081",
		LogPath:         "minting-service.log",
		JournalPath:     "mints.json",
		WorkerInterval:  30 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    5 * time.Second,
		InterDispatch:   1 * time.Second,
		InscriptionTool: `ord wallet --name {wallet} inscribe --fee-rate 1 --destination {destination} --file {file}`,
	}
}

// tomlSettings matches keys to Go struct field names verbatim, same as the
// node config this was adapted from.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// loadTOML decodes file into cfg, leaving fields untouched when the file is
// absent so defaults survive.
func loadTOML(file string, cfg interface{}) error {
	if file == "" {
		return nil
	}
	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	var lineErr *toml.LineError
	if errors.As(err, &lineErr) {
		err = fmt.Errorf("%s, %w", file, err)
	}
	return err
}

// LoadMonitor builds a Monitor config: defaults, then file, then environment.
func LoadMonitor(file string) (Monitor, error) {
	cfg := DefaultMonitor()
	if err := loadTOML(file, &cfg); err != nil {
		return cfg, err
	}
	if err := envconfig.Process("MONITOR", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWorker builds a Worker config: defaults, then file, then environment.
func LoadWorker(file string) (Worker, error) {
	cfg := DefaultWorker()
	if err := loadTOML(file, &cfg); err != nil {
		return cfg, err
	}
	if err := envconfig.Process("WORKER", &cfg); err != nil {
		return cfg, err
	}
	// SERVER_URL (unprefixed) is the documented override for the worker's
	// view of the monitor's base URL; it takes precedence over the file
	// and over WORKER_SERVER_URL.
	if v := os.Getenv("SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	return cfg, nil
}

// DumpMonitor writes cfg as TOML to w, mirroring the dumpconfig command.
func DumpMonitor(w io.Writer, cfg Monitor) error {
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// DumpWorker writes cfg as TOML to w, mirroring the dumpconfig command.
func DumpWorker(w io.Writer, cfg Worker) error {
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
