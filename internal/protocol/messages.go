package protocol

type Hello struct {
	SupportedVersions []string `json:"supportedVersions"`
}

type HelloAck struct {
	Version     string `json:"version"`
	SessionID   string `json:"sessionId"`
	HeartbeatMs int    `json:"heartbeatMs"`
}

type Auth struct {
	Token string `json:"token"`
}

type AuthOk struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TableRef is the payload of table_join, table_leave, table_state_sub and resync.
type TableRef struct {
	TableID string `json:"tableId"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Echo struct {
	UserID  string         `json:"userId"`
	Payload map[string]any `json:"payload,omitempty"`
}
