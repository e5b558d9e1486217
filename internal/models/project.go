package models

// Channel is one configured sensor channel of a model.
type Channel struct {
	ChannelName string `json:"channelName"`
	Unit        string `json:"unit,omitempty"`
}

// Model is a named group of channels sharing one MQTT tag/topic.
type Model struct {
	Name     string    `json:"name"`
	TagName  string    `json:"tagName"`
	Channels []Channel `json:"channels"`
}

// Project is a collection of models plus the DAQ channel-count
// configuration token (free-form, e.g. "DAQ8CH").
type Project struct {
	Name               string  `json:"name"`
	Models             []Model `json:"models"`
	ChannelCountConfig string  `json:"channelCountConfig"`
}
