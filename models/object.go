package models

import "net/url"

type Object struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Container string     `json:"container"`
	Meta      url.Values `json:"metadata"`
	Readers   []string   `json:"readers,omitempty"`
	Trashed   bool       `json:"trashed"`
	Payload   []byte     `json:"payload,omitempty"`
}
