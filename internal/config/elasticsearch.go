package config

import "time"

type ElasticsearchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URL        string        `yaml:"url"`
	Index      string        `yaml:"index"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *ElasticsearchConfig) applyEnv() {
	c.Enabled = getEnvBool("ELASTICSEARCH_ENABLED", c.Enabled)
	c.URL = getEnv("ELASTICSEARCH_URL", c.URL)
	c.Index = getEnv("ELASTICSEARCH_INDEX", c.Index)
	c.Username = getEnv("ELASTICSEARCH_USERNAME", c.Username)
	c.Password = getEnv("ELASTICSEARCH_PASSWORD", c.Password)
	c.MaxRetries = getEnvInt("ELASTICSEARCH_MAX_RETRIES", c.MaxRetries)
	c.Timeout = getEnvDuration("ELASTICSEARCH_TIMEOUT", c.Timeout)
}
