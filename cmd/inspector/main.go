package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

// inspector is a small ops CLI against a running edgewatch admin API.
//
//	inspector status
//	inspector shards
//	inspector monitors
//	inspector exposures
//	inspector killswitch on "reason"
//	inspector killswitch off

type statusView struct {
	Mode          string    `json:"mode"`
	KillSwitch    bool      `json:"kill_switch"`
	TrackedEvents int       `json:"tracked_events"`
	AliveShards   int       `json:"alive_shards"`
	StartedAt     time.Time `json:"started_at"`
}

type shardsView struct {
	Shards []struct {
		ShardID       string    `json:"shard_id"`
		Alive         bool      `json:"alive"`
		MissedBeats   int       `json:"missed_beats"`
		EventCount    int       `json:"event_count"`
		LastHeartbeat time.Time `json:"last_heartbeat"`
	} `json:"shards"`
}

type monitorsView struct {
	Monitors []struct {
		EventID    string `json:"event_id"`
		MarketType string `json:"market_type"`
		Phase      string `json:"phase"`
		Degraded   bool   `json:"degraded"`
	} `json:"monitors"`
}

type exposuresView struct {
	Exposures []struct {
		EventID  string `json:"event_id"`
		Exposure string `json:"exposure"`
	} `json:"exposures"`
}

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("EDGEWATCH_INSPECTOR_ADDR", "http://localhost:8080"), "edgewatch server address")
	adminKey := flag.String("key", os.Getenv("EDGEWATCH_SERVER_ADMIN_KEY"), "admin API key")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	var err error
	switch flag.Arg(0) {
	case "status", "":
		err = showStatus(client, *addr)
	case "shards":
		err = showShards(client, *addr)
	case "monitors":
		err = showMonitors(client, *addr)
	case "exposures":
		err = showExposures(client, *addr)
	case "killswitch":
		err = setKillSwitch(client, *addr, *adminKey, flag.Arg(1), flag.Arg(2))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func showStatus(client *http.Client, addr string) error {
	var st statusView
	if err := getJSON(client, addr+"/api/v1/status", &st); err != nil {
		return err
	}

	killSwitch := "off"
	if st.KillSwitch {
		killSwitch = "ENGAGED"
	}
	fmt.Printf("Mode:           %s\n", st.Mode)
	fmt.Printf("Kill switch:    %s\n", killSwitch)
	fmt.Printf("Tracked events: %d\n", st.TrackedEvents)
	fmt.Printf("Alive shards:   %d\n", st.AliveShards)
	fmt.Printf("Up since:       %s\n", st.StartedAt.Format(time.RFC3339))
	return nil
}

func showShards(client *http.Client, addr string) error {
	var sv shardsView
	if err := getJSON(client, addr+"/api/v1/shards", &sv); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Shard", "Alive", "Events", "Missed", "Last heartbeat")
	for _, s := range sv.Shards {
		alive := "yes"
		if !s.Alive {
			alive = "DEAD"
		}
		table.Append(s.ShardID, alive,
			fmt.Sprintf("%d", s.EventCount),
			fmt.Sprintf("%d", s.MissedBeats),
			s.LastHeartbeat.Format(time.RFC3339))
	}
	table.Render()
	return nil
}

func showMonitors(client *http.Client, addr string) error {
	var mv monitorsView
	if err := getJSON(client, addr+"/api/v1/monitors", &mv); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Event", "Market", "Phase", "Degraded")
	for _, m := range mv.Monitors {
		degraded := ""
		if m.Degraded {
			degraded = "yes"
		}
		table.Append(m.EventID, m.MarketType, m.Phase, degraded)
	}
	table.Render()
	return nil
}

func showExposures(client *http.Client, addr string) error {
	var ev exposuresView
	if err := getJSON(client, addr+"/api/v1/exposures", &ev); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Event", "Exposure")
	for _, e := range ev.Exposures {
		table.Append(e.EventID, e.Exposure)
	}
	table.Render()
	return nil
}

func setKillSwitch(client *http.Client, addr, adminKey, state, reason string) error {
	var engaged bool
	switch state {
	case "on":
		engaged = true
	case "off":
		engaged = false
	default:
		return fmt.Errorf("killswitch takes on|off, got %q", state)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"engaged": engaged,
		"reason":  reason,
	})
	req, err := http.NewRequest(http.MethodPost, addr+"/api/v1/killswitch", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", adminKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("killswitch returned %s", resp.Status)
	}
	if engaged {
		fmt.Println("Kill switch ENGAGED")
	} else {
		fmt.Println("Kill switch released")
	}
	return nil
}
