package main

type Config struct {
	ConfigPath     string
	ConversationID string
	ShowPrompt     bool
}

func (c Config) Validate() error {
	return nil
}

func defaultConfig() Config {
	return Config{}
}
