package remote

import (
	"encoding/json"
	"time"
)

// Handle is the service's view of one uploaded file.
type Handle struct {
	Name           string    `json:"name"`
	DisplayName    string    `json:"display_name,omitempty"`
	URI            string    `json:"uri,omitempty"`
	MIMEType       string    `json:"mime_type,omitempty"`
	SizeBytes      int64     `json:"size_bytes,omitempty"`
	ServiceState   string    `json:"state"`
	CreateTime     time.Time `json:"create_time,omitzero"`
	UpdateTime     time.Time `json:"update_time,omitzero"`
	ExpirationTime time.Time `json:"expiration_time,omitzero"`
	SHA256         string    `json:"sha256_hash,omitempty"`
	ErrorMessage   string    `json:"error,omitempty"`
}

// State returns the processor state of the handle.
func (h *Handle) State() State {
	return FromServiceState(h.ServiceState)
}

// JSON renders the handle as indented JSON.
func (h *Handle) JSON() string {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// HandlesJSON renders a list of handles as an indented JSON array.
func HandlesJSON(handles []*Handle) string {
	if handles == nil {
		handles = []*Handle{}
	}
	data, err := json.MarshalIndent(handles, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
