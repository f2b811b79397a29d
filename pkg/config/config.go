// Package config loads section rules from JSON files.
//
// The on-disk shape uses whole seconds, matching the store's TTL
// granularity:
//
//	{
//	    "user":  {"amount": 10, "interval": 60, "timeout": 60},
//	    "admin": {"amount": 100, "interval": 60, "timeout": 10}
//	}
package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/manenim/server-rate-limiter/pkg/ratelimit"
)

type ruleJSON struct {
	Amount   int64 `json:"amount"`
	Interval int64 `json:"interval"`
	Timeout  int64 `json:"timeout"`
}

// Load reads and decodes the section rules at path.
func Load(path string) (ratelimit.Sections, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// LoadOrWrite behaves like Load, but when the file is missing or does not
// decode it writes defaults to path and returns them. The overwrite is
// logged rather than silent so a corrupt production config does not
// vanish unnoticed. Read failures other than not-exist (for example
// permission errors) are returned as-is: a file we could not even read
// is not ours to replace.
func LoadOrWrite(path string, defaults ratelimit.Sections, logger *slog.Logger) (ratelimit.Sections, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	} else {
		sections, derr := decode(data)
		if derr == nil {
			return sections, nil
		}
		logger.Warn("replacing unusable rate limit config", "path", path, "err", derr)
	}

	if werr := write(path, defaults); werr != nil {
		return nil, werr
	}
	return defaults, nil
}

func decode(data []byte) (ratelimit.Sections, error) {
	var raw map[string]ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	sections := make(ratelimit.Sections, len(raw))
	for name, r := range raw {
		sections[name] = ratelimit.Rule{
			Amount:   r.Amount,
			Interval: time.Duration(r.Interval) * time.Second,
			Timeout:  time.Duration(r.Timeout) * time.Second,
		}
	}
	return sections, nil
}

func write(path string, sections ratelimit.Sections) error {
	raw := make(map[string]ruleJSON, len(sections))
	for name, r := range sections {
		raw[name] = ruleJSON{
			Amount:   r.Amount,
			Interval: int64(r.Interval / time.Second),
			Timeout:  int64(r.Timeout / time.Second),
		}
	}

	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
