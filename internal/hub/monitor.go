package hub

import "strings"

// MonitorResponse summarises the hub for the monitoring endpoint.
type MonitorResponse struct {
	Status        string        `json:"status"` // "healthy" or "idle"
	TotalClients  int           `json:"totalClients"`
	TotalChannels int           `json:"totalChannels"`
	Channels      []ChannelInfo `json:"channels"`
}

// ChannelInfo describes one live channel and its subscriber count.
type ChannelInfo struct {
	Channel     string `json:"channel"`
	Kind        string `json:"kind"` // "user" or "conversation"
	Subscribers int    `json:"subscribers"`
}

// MonitorService gathers hub statistics for the monitoring API.
type MonitorService struct {
	hub *Hub
}

func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats walks every shard and reports live channels and subscribers.
func (ms *MonitorService) GetStats() MonitorResponse {
	resp := MonitorResponse{
		Channels: make([]ChannelInfo, 0),
	}

	seenClients := make(map[string]struct{})
	for _, bucket := range ms.hub.shards {
		bucket.RLock()
		for channel, subscribers := range bucket.channels {
			kind := "conversation"
			if strings.HasPrefix(channel, "user:") {
				kind = "user"
			}
			resp.Channels = append(resp.Channels, ChannelInfo{
				Channel:     channel,
				Kind:        kind,
				Subscribers: len(subscribers),
			})
			for clientID := range subscribers {
				seenClients[clientID] = struct{}{}
			}
		}
		bucket.RUnlock()
	}

	resp.TotalChannels = len(resp.Channels)
	resp.TotalClients = len(seenClients)
	resp.Status = "healthy"
	if resp.TotalClients == 0 {
		resp.Status = "idle"
	}
	return resp
}
