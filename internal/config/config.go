package config

import (
	"os"
	"path/filepath"

	"github.com/kestrel-systems/rpcsession/internal/logger"
	"github.com/kestrel-systems/rpcsession/internal/util"
	"github.com/spf13/viper"
)

var (
	// CfgFile, if set by the --config flag, overrides the default config
	// file lookup.
	CfgFile string
	log     = logger.GetLogger()
)

// BaseDirName names the per-user configuration directory under the user's
// home directory.
const BaseDirName = ".rpcsession"

// Config holds the client's tunable defaults, loadable from a YAML file via
// viper. Environment variables are not consulted; rpcclient's --endpoint,
// --network and --max-frame-len flags take precedence over the file.
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Network         string `mapstructure:"network"`
	MaxFrameLen     int    `mapstructure:"max_frame_len"`
	ConnectTimeoutS int    `mapstructure:"connect_timeout_seconds"`
	WaitTimeoutS    int    `mapstructure:"wait_timeout_seconds"`
}

// Default returns the built-in defaults, used to seed viper before any
// config file or flag is applied.
func Default() Config {
	return Config{
		Endpoint:        "127.0.0.1:9000",
		Network:         "tcp",
		MaxFrameLen:     16 << 20,
		ConnectTimeoutS: 5,
		WaitTimeoutS:    10,
	}
}

// Init wires viper to read rpcsession's config file, creating one populated
// with defaults on first run. It mirrors the load-then-create-if-missing
// flow used throughout this codebase's configuration layer.
func Init() {
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BaseDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	handleConfigFile()
}

func setDefaults() {
	d := Default()
	viper.SetDefault("endpoint", d.Endpoint)
	viper.SetDefault("network", d.Network)
	viper.SetDefault("max_frame_len", d.MaxFrameLen)
	viper.SetDefault("connect_timeout_seconds", d.ConnectTimeoutS)
	viper.SetDefault("wait_timeout_seconds", d.WaitTimeoutS)
}

func handleConfigFile() {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if CfgFile != "" {
				log.Errorf("config file %s not found: %s", CfgFile, err)
				return
			}
			createDefaultConfig(BaseDirPath())
		} else {
			log.Errorf("error reading config file: %s", err)
		}
		return
	}
	log.Debugf("using config file: %s", viper.ConfigFileUsed())
}

func createDefaultConfig(dir string) {
	target := filepath.Join(dir, "config.yaml")
	if util.CheckFileExists(target) {
		log.Debugf("config file %s already exists, not overwriting", target)
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Errorf("could not create config directory: %s", err)
		return
	}
	viper.SetConfigFile(target)
	if err := viper.SafeWriteConfig(); err != nil {
		log.Debugf("default config not written: %s", err)
		return
	}
	log.Debugf("created default configuration at: %s", target)
}

// FromViper materializes a Config from viper's current state (config file
// and defaults already merged).
func FromViper() Config {
	return Config{
		Endpoint:        viper.GetString("endpoint"),
		Network:         viper.GetString("network"),
		MaxFrameLen:     viper.GetInt("max_frame_len"),
		ConnectTimeoutS: viper.GetInt("connect_timeout_seconds"),
		WaitTimeoutS:    viper.GetInt("wait_timeout_seconds"),
	}
}

// BaseDirPath returns the per-user configuration directory.
func BaseDirPath() string {
	return filepath.Join(util.UserHome(), BaseDirName)
}
