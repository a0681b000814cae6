package backend

import "encoding/json"

// StatusSuccess is the status value of a successful login or quota reply.
const StatusSuccess = "success"

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the reply to POST /login. Token is only set when Status
// is "success"; Message explains a failure.
type LoginResponse struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

// Message is one role-tagged entry of a chain as sent on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SendRequest is the body of POST /send.
type SendRequest struct {
	Messages       []Message `json:"messages"`
	ConversationID string    `json:"conversation_id"`
}

// QuotaResponse is the reply to GET /quota. Quota is kept as raw JSON so a
// numeric or string value can be reported exactly as the backend sent it.
type QuotaResponse struct {
	Status  string          `json:"status"`
	Quota   json.RawMessage `json:"quota,omitempty"`
	Message string          `json:"message,omitempty"`
}

// QuotaString renders the quota value unchanged: numbers keep their JSON
// literal form, strings are unquoted.
func (q *QuotaResponse) QuotaString() string {
	if len(q.Quota) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(q.Quota, &s); err == nil {
		return s
	}

	return string(q.Quota)
}
