package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the chat API with a user bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

type chatReply struct {
	ConversationID    int64             `json:"conversation_id"`
	ChatMessageID     int64             `json:"chat_message_id"`
	Reply             string            `json:"reply"`
	Citations         []json.RawMessage `json:"citations"`
	RiskLevel         string            `json:"risk_level"`
	EmergencyDetected bool              `json:"emergency_detected"`
	SuppressionReason *string           `json:"suppression_reason"`
}

type explanation struct {
	RiskAssessment struct {
		Level             string `json:"level"`
		EmergencyDetected bool   `json:"emergency_detected"`
	} `json:"risk_assessment"`
	MedicalDomain string `json:"medical_domain"`
}

type ragTrace struct {
	RAG *struct {
		CitationsReturned bool              `json:"citations_returned"`
		SuppressionReason string            `json:"suppression_reason"`
		RetrievedChunks   []json.RawMessage `json:"retrieved_chunks"`
	} `json:"rag"`
}

// do sends a request and returns the raw JSON body, decoding it into out.
func (c *Client) do(ctx context.Context, method, path string, payload any, out any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("evaluation: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("evaluation: read %s: %w", path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("evaluation: HTTP %d for %s: %s", resp.StatusCode, path, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("evaluation: decode %s: %w", path, err)
	}
	return raw, nil
}

func (c *Client) chat(ctx context.Context, message string) (chatReply, json.RawMessage, error) {
	var out chatReply
	raw, err := c.do(ctx, http.MethodPost, "/api/v1/chat", map[string]string{"message": message}, &out)
	return out, raw, err
}

func (c *Client) explain(ctx context.Context, messageID int64) (explanation, json.RawMessage, error) {
	var out explanation
	raw, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/chat/%d/explain", messageID), nil, &out)
	return out, raw, err
}

func (c *Client) explainRAG(ctx context.Context, messageID int64) (ragTrace, json.RawMessage, error) {
	var out ragTrace
	raw, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/chat/%d/explain-rag", messageID), nil, &out)
	return out, raw, err
}
