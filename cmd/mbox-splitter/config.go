package main

import "fmt"

type Config struct {
	InputPath string
	OutputDir string
	Overwrite bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("missing -in")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("missing -out")
	}
	return nil
}

func defaultConfig() Config {
	return Config{}
}
