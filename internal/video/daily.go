// Package video provisions private Daily rooms for appointments and mints
// per-participant meeting tokens.
package video

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

// Room is a provisioned video room.
type Room struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TokenRequest describes one participant's meeting token.
type TokenRequest struct {
	RoomName  string
	UserID    string
	UserName  string
	IsOwner   bool
	ExpiresAt time.Time
}

// RoomProvider is the video backend.
type RoomProvider interface {
	CreateRoom(ctx context.Context, name string, expiresAt time.Time) (Room, error)
	CreateMeetingToken(ctx context.Context, req TokenRequest) (string, error)
}

// DailyClient talks to the Daily REST API.
type DailyClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewDailyClient creates a client. A nil http client gets a 10 second timeout.
func NewDailyClient(baseURL, apiKey string, client *http.Client) *DailyClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DailyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type roomProperties struct {
	Exp             int64 `json:"exp"`
	EnableChat      bool  `json:"enable_chat"`
	EnableScreen    bool  `json:"enable_screenshare"`
	MaxParticipants int   `json:"max_participants"`
	EnablePeopleUI  bool  `json:"enable_people_ui"`
	EnablePrejoinUI bool  `json:"enable_prejoin_ui"`
	EnableNetworkUI bool  `json:"enable_network_ui"`
}

type createRoomRequest struct {
	Name       string         `json:"name"`
	Privacy    string         `json:"privacy"`
	Properties roomProperties `json:"properties"`
}

// CreateRoom creates a private room that closes at expiresAt.
func (d *DailyClient) CreateRoom(ctx context.Context, name string, expiresAt time.Time) (Room, error) {
	var room Room
	err := d.post(ctx, "/rooms", createRoomRequest{
		Name:    name,
		Privacy: "private",
		Properties: roomProperties{
			Exp:             expiresAt.Unix(),
			EnableChat:      true,
			EnableScreen:    true,
			MaxParticipants: 10,
			EnableNetworkUI: true,
		},
	}, &room)
	if err != nil {
		return Room{}, err
	}
	if room.URL == "" {
		return Room{}, fmt.Errorf("daily: room %s created without a url", name)
	}
	return room, nil
}

type tokenProperties struct {
	RoomName string `json:"room_name"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	IsOwner  bool   `json:"is_owner"`
	Exp      int64  `json:"exp"`
}

// CreateMeetingToken mints a token that admits one user to a private room.
func (d *DailyClient) CreateMeetingToken(ctx context.Context, req TokenRequest) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := d.post(ctx, "/meeting-tokens", map[string]tokenProperties{
		"properties": {
			RoomName: req.RoomName,
			UserID:   req.UserID,
			UserName: req.UserName,
			IsOwner:  req.IsOwner,
			Exp:      req.ExpiresAt.Unix(),
		},
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

func (d *DailyClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("daily: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("daily: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("daily: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("daily: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("daily: decode %s: %w", path, err)
	}
	return nil
}
