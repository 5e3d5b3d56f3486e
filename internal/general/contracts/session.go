package contracts

type AuthSuccess struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	ConnectionID string `json:"connectionId"`
	Timestamp    string `json:"timestamp"`
}

// Stats is the GET /api/realtime/stats body.
type Stats struct {
	NodeID        string         `json:"nodeId"`
	ActiveDrivers int            `json:"activeDrivers"`
	OnlineUsers   int            `json:"onlineUsers"`
	Connections   int            `json:"connections"`
	Groups        map[string]int `json:"groups"`
}

type Presence struct {
	UserID      string `json:"userId"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
}

// TokenRequest is the body of POST /tokens when dev tokens are enabled.
type TokenRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}
