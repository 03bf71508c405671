package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/joi/internal/protocol"
)

type options struct {
	baseURL        string
	username       string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type wsEnvelope struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// turnTiming is measured from sending the user message.
type turnTiming struct {
	firstChar time.Duration
	total     time.Duration
	chars     int
}

type streamEvent struct {
	kind string
	at   time.Time
}

var defaultUtterances = []string{
	"hey, how was your day?",
	"I love rainy days and old movies",
	"what do you remember about me?",
	"tell me something sweet",
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfchat: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var textsRaw string
	fs := flag.NewFlagSet("perfchat", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8000", "Joi base URL")
	fs.StringVar(&cfg.username, "user", "perf-replay", "username used to log in")
	fs.IntVar(&cfg.turns, "turns", 4, "number of turns to replay")
	fs.DurationVar(&cfg.interTurnDelay, "inter-turn", 200*time.Millisecond, "delay between turns")
	fs.DurationVar(&cfg.turnTimeout, "turn-timeout", 60*time.Second, "timeout waiting for message_end per turn")
	fs.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if strings.TrimSpace(cfg.username) == "" {
		return options{}, fmt.Errorf("user is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.turnTimeout < time.Second {
		cfg.turnTimeout = time.Second
	}

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	events := make(chan streamEvent, 1024)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh, cfg.verbose)

	if err := conn.WriteJSON(protocol.Login{Type: protocol.TypeLogin, UserID: cfg.username}); err != nil {
		return fmt.Errorf("send login: %w", err)
	}
	if _, err := awaitMessage(events, readErrCh, time.Now(), cfg.turnTimeout); err != nil {
		return fmt.Errorf("await greeting: %w", err)
	}

	timings := make([]turnTiming, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		if cfg.verbose {
			fmt.Printf("perfchat: turn %d/%d text=%q\n", i+1, cfg.turns, text)
		}
		sentAt := time.Now()
		if err := conn.WriteJSON(protocol.ChatMessage{Message: text}); err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}
		timing, err := awaitMessage(events, readErrCh, sentAt, cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d await message_end: %w", i+1, err)
		}
		timings = append(timings, timing)
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	fmt.Print(summarize(timings))
	return nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, events chan<- streamEvent, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch protocol.MessageType(env.Type) {
		case protocol.TypeChar, protocol.TypeMessageEnd:
			events <- streamEvent{kind: env.Type, at: time.Now()}
		case protocol.TypeError:
			if verbose {
				fmt.Fprintf(os.Stderr, "perfchat: error code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

// awaitMessage consumes char frames up to the next message_end.
func awaitMessage(events <-chan streamEvent, readErrCh <-chan error, since time.Time, timeout time.Duration) (turnTiming, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var t turnTiming
	for {
		select {
		case ev := <-events:
			switch protocol.MessageType(ev.kind) {
			case protocol.TypeChar:
				if t.chars == 0 {
					t.firstChar = ev.at.Sub(since)
				}
				t.chars++
			case protocol.TypeMessageEnd:
				t.total = ev.at.Sub(since)
				return t, nil
			}
		case err := <-readErrCh:
			return t, err
		case <-timer.C:
			return t, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func summarize(timings []turnTiming) string {
	if len(timings) == 0 {
		return "perfchat: no turns recorded\n"
	}
	first := make([]float64, 0, len(timings))
	total := make([]float64, 0, len(timings))
	chars := 0
	for _, t := range timings {
		first = append(first, float64(t.firstChar.Milliseconds()))
		total = append(total, float64(t.total.Milliseconds()))
		chars += t.chars
	}
	var b strings.Builder
	fmt.Fprintf(&b, "perfchat: turns=%d chars=%d\n", len(timings), chars)
	fmt.Fprintf(&b, "perfchat: first_char_ms p50=%.0f p95=%.0f\n", percentile(first, 0.50), percentile(first, 0.95))
	fmt.Fprintf(&b, "perfchat: turn_total_ms p50=%.0f p95=%.0f\n", percentile(total, 0.50), percentile(total, 0.95))
	return b.String()
}

// percentile uses nearest rank.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return sorted[rank]
}
