package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// triagechat is a terminal client for exercising a running gateway: it keeps
// one consultation open and prints each assessment with its labels.

type turnRequest struct {
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message"`
	Location  *location `json:"user_location,omitempty"`
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type turnResponse struct {
	SessionID  string  `json:"session_id"`
	Response   string  `json:"response"`
	Stage      string  `json:"stage"`
	Condition  string  `json:"condition"`
	Urgency    string  `json:"urgency_level"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Offline    bool    `json:"offline"`
	Hospitals  []struct {
		Name       string  `json:"name"`
		Address    string  `json:"address"`
		DistanceKm float64 `json:"distance_km"`
		PlaceType  string  `json:"place_type"`
	} `json:"hospitals"`
	Error string `json:"error"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "gateway base URL")
	lat := flag.Float64("lat", 0, "latitude to send with each turn")
	lng := flag.Float64("lng", 0, "longitude to send with each turn")
	flag.Parse()

	client := &http.Client{Timeout: 60 * time.Second}

	bold := color.New(color.Bold)
	assistant := color.New(color.FgCyan)
	label := color.New(color.FgYellow)
	warn := color.New(color.FgRed)

	bold.Println("FirstAidVox triage chat. Describe your symptoms; Ctrl-D to quit.")

	var loc *location
	if *lat != 0 || *lng != 0 {
		loc = &location{Latitude: *lat, Longitude: *lng}
	}

	var sessionID string
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}

		resp, err := sendTurn(client, *baseURL, turnRequest{
			SessionID: sessionID,
			Message:   message,
			Location:  loc,
		})
		if err != nil {
			warn.Printf("error: %v\n", err)
			continue
		}
		if resp.Error != "" {
			warn.Printf("error: %s\n", resp.Error)
			continue
		}
		sessionID = resp.SessionID

		assistant.Println(resp.Response)
		label.Printf("[stage=%s urgency=%s confidence=%.2f lang=%s", resp.Stage, resp.Urgency, resp.Confidence, resp.Language)
		if resp.Offline {
			label.Printf(" offline")
		}
		label.Println("]")

		if resp.Condition != "" {
			label.Printf("condition: %s\n", resp.Condition)
		}
		for _, h := range resp.Hospitals {
			fmt.Printf("  %s (%s, %.2f km) %s\n", h.Name, h.PlaceType, h.DistanceKm, h.Address)
		}
	}

	if err := scanner.Err(); err != nil {
		warn.Printf("input error: %v\n", err)
		os.Exit(1)
	}
}

func sendTurn(client *http.Client, baseURL string, req turnRequest) (*turnResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpResp, err := client.Post(
		strings.TrimRight(baseURL, "/")+"/api/chat/conversational",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var decoded turnResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if httpResp.StatusCode >= 400 && decoded.Error == "" {
		return nil, fmt.Errorf("gateway returned %s", httpResp.Status)
	}
	return &decoded, nil
}
