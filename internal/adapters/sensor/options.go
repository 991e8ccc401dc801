package sensor

import (
	"errors"
	"time"
)

// Options tunes the readers built by New. Endpoints are not part of Options:
// they come from the live configuration.
type Options struct {
	Timeout time.Duration `yaml:"timeout"`
	OPCUA   OPCUAOptions  `yaml:"opcua"`
}

// OPCUAOptions describes how to read a DHT exposed through an OPC UA server.
type OPCUAOptions struct {
	TemperatureNode string `yaml:"temperature_node"`
	HumidityNode    string `yaml:"humidity_node"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SecurityMode    string `yaml:"security_mode"`
	SecurityPolicy  string `yaml:"security_policy"`
	ApplicationName string `yaml:"application_name"`
}

func (o *Options) ApplyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
	o.OPCUA.ApplyDefaults()
}

func (o *OPCUAOptions) ApplyDefaults() {
	if o.SecurityMode == "" {
		o.SecurityMode = "None"
	}
	if o.SecurityPolicy == "" {
		o.SecurityPolicy = "None"
	}
	if o.ApplicationName == "" {
		o.ApplicationName = "DHTFlow Edge"
	}
	if o.TemperatureNode == "" {
		o.TemperatureNode = "ns=2;s=DHT.Temperature"
	}
	if o.HumidityNode == "" {
		o.HumidityNode = "ns=2;s=DHT.Humidity"
	}
}

func (o *OPCUAOptions) Validate() error {
	if o.TemperatureNode == "" || o.HumidityNode == "" {
		return errors.New("temperature_node and humidity_node are required")
	}
	return nil
}
