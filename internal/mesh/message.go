package mesh

import "time"

// Message is a single text message received from the mesh. Link quality
// fields (SNR, RSSI, HopLimit) are carried through untouched for plugins;
// dispatch never branches on them.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Channel    int       `json:"channel"`
	Text       string    `json:"text"`
	RxTime     time.Time `json:"rx_time"`
	Direct     bool      `json:"direct"`
	HopLimit   int       `json:"hop_limit"`
	SNR        float64   `json:"snr"`
	RSSI       int       `json:"rssi"`
}

// Info describes the state of the mesh link for status reporting.
type Info struct {
	Connected   bool   `json:"connected"`
	LocalNodeID string `json:"local_node_id"`
	NodeCount   int    `json:"node_count"`
}
