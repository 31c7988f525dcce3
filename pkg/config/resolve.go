package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
)

// EnvPrefix namespaces the environment variables read for flags: --redis-host is
// STREAMMIN_REDIS_HOST.
const EnvPrefix = "STREAMMIN"

// ConfigFlag names the flag holding the config file path; it is never resolved itself.
const ConfigFlag = "config"

// Resolve fills every flag of fs that was not given on the command line, taking the value from
// the environment first and then from the config file at path (skipped when empty). Config
// file keys are flag names. Flags found nowhere keep their defaults.
func Resolve(fs *pflag.FlagSet, path string) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		klog.V(2).Infof("Using config file: %s", v.ConfigFileUsed())
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == ConfigFlag || !v.IsSet(f.Name) {
			return
		}
		if err := fs.Set(f.Name, v.GetString(f.Name)); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for --%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}
