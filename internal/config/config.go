package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	Host     string   `koanf:"host"`
	Timezone string   `koanf:"timezone"`
	Database Database `koanf:"db"`
	Reminder Reminder `koanf:"reminder"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

type Reminder struct {
	// SendDelayMs is the pause between consecutive outbound messages,
	// keeping the sender under chat-platform rate limits.
	SendDelayMs int `koanf:"senddelayms"`
	// LookaheadDays bounds the default upcoming-events search window.
	LookaheadDays int `koanf:"lookaheaddays"`
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Application{
		Host:     ":8181",
		Timezone: "Europe/Moscow",
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "napomni",
			Pass:   "",
			Name:   "napomni",
			Schema: "napomni",
		},
		Reminder: Reminder{
			SendDelayMs:   50,
			LookaheadDays: 10,
		},
	}, "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider("NAPOMNI_", ".", func(s string) string {
		// Transform the key.
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "NAPOMNI_")), "_", ".")
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
