package main

import "fmt"

type Config struct {
	MessagesDir    string
	AttachmentsDir string
	ConfigPath     string
	SummariesOut   string
	Wipe           bool
	Pretty         bool
}

func (c Config) Validate() error {
	if c.MessagesDir == "" {
		return fmt.Errorf("missing -messages")
	}
	return nil
}

func defaultConfig() Config {
	return Config{}
}
