package models

// ServicerConfig is the static per-counterparty descriptor. Endpoint,
// credentials and requirements are opaque to the core and interpreted by the
// servicer's adapter. Owned by configuration, read-only at runtime.
type ServicerConfig struct {
	ID           string                 `mapstructure:"id" json:"id"`
	Name         string                 `mapstructure:"name" json:"name"`
	ChannelType  Channel                `mapstructure:"channel_type" json:"channelType"`
	Endpoint     string                 `mapstructure:"endpoint" json:"endpoint"`
	Credentials  map[string]string      `mapstructure:"credentials" json:"-"`
	Requirements map[string]interface{} `mapstructure:"requirements" json:"requirements,omitempty"`
}

// Credential returns a named credential, empty when absent.
func (c ServicerConfig) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}
