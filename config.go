package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/secureudp/go-secureudp/cipher"
	"github.com/secureudp/go-secureudp/core"
)

// options is filled from flags and, for flags left unset, from the YAML
// file named by --config.
type options struct {
	Key         string        `yaml:"key"`
	Password    string        `yaml:"password"`
	Cipher      string        `yaml:"cipher"`
	Listen      string        `yaml:"listen"`
	Remote      string        `yaml:"remote"`
	Interval    time.Duration `yaml:"interval"`
	MaxPending  int           `yaml:"max_pending"`
	MaxAttempts int           `yaml:"max_attempts"`
	Ack         bool          `yaml:"ack"`
	Dedup       bool          `yaml:"dedup"`
	Queue       int           `yaml:"queue"`
	Metrics     string        `yaml:"metrics"`
	Verbose     bool          `yaml:"verbose"`
}

var errNoKey = errors.New("no key: set --key or --password")

func readConfigFile(path string) (options, error) {
	var o options
	b, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	if err := yaml.Unmarshal(b, &o); err != nil {
		return o, fmt.Errorf("parse %s: %w", path, err)
	}
	return o, nil
}

// merge copies every field of file whose flag was not given explicitly.
func (o *options) merge(file options, flags *pflag.FlagSet) {
	set := func(name string, apply func()) {
		if f := flags.Lookup(name); f == nil || !f.Changed {
			apply()
		}
	}
	set("key", func() { o.Key = file.Key })
	set("password", func() { o.Password = file.Password })
	set("cipher", func() {
		if file.Cipher != "" {
			o.Cipher = file.Cipher
		}
	})
	set("listen", func() {
		if file.Listen != "" {
			o.Listen = file.Listen
		}
	})
	set("to", func() {
		if file.Remote != "" {
			o.Remote = file.Remote
		}
	})
	set("interval", func() {
		if file.Interval > 0 {
			o.Interval = file.Interval
		}
	})
	set("max-pending", func() {
		if file.MaxPending > 0 {
			o.MaxPending = file.MaxPending
		}
	})
	set("max-attempts", func() { o.MaxAttempts = file.MaxAttempts })
	set("ack", func() { o.Ack = file.Ack })
	set("dedup", func() { o.Dedup = file.Dedup })
	set("queue", func() { o.Queue = file.Queue })
	set("metrics", func() { o.Metrics = file.Metrics })
	set("verbose", func() { o.Verbose = file.Verbose })
}

// key returns the shared key, decoded from base64url or derived from the
// password.
func (o *options) key() ([]byte, error) {
	if o.Key != "" {
		k, err := base64.URLEncoding.DecodeString(o.Key)
		if err != nil {
			return nil, fmt.Errorf("decode key: %w", err)
		}
		if len(k) != cipher.KeySize {
			return nil, fmt.Errorf("key is %d bytes, want %d: %w", len(k), cipher.KeySize, cipher.ErrInvalidKeyLength)
		}
		return k, nil
	}
	if o.Password != "" {
		return cipher.DeriveKey(o.Password), nil
	}
	return nil, errNoKey
}

func (o *options) coreConfig() (core.Config, error) {
	key, err := o.key()
	if err != nil {
		return core.Config{}, err
	}
	return core.Config{
		Key:            key,
		Suite:          o.Cipher,
		Logger:         logger,
		Interval:       o.Interval,
		MaxPending:     o.MaxPending,
		MaxAttempts:    o.MaxAttempts,
		Ack:            o.Ack,
		DropDuplicates: o.Dedup,
		QueueSize:      o.Queue,
		OnGiveUp: func(seq uint32, reason error) {
			logf("gave up on seq=%d: %v", seq, reason)
		},
	}, nil
}
