package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"polystirolhub-backend/services"
	"polystirolhub-backend/utils"
)

// CounterSnapshot is one authoritative counter value from the game-server
// statistics service, keyed by the player's platform UUID.
type CounterSnapshot struct {
	PlayerUUID string    `json:"player_uuid"`
	CounterKey string    `json:"counter_key"`
	Value      int64     `json:"value"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatsSyncClient polls the statistics service and resynchronizes local
// counters to its values. Counters overwritten here immediately re-drive
// badge and quest progress, so an out-of-band correction on the game
// server propagates into grants on the next poll.
type StatsSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	Accounts *services.AccountService
	Counters *services.CounterService
	Progress *services.ProgressService
}

func NewStatsSyncClient(accounts *services.AccountService, counters *services.CounterService, progress *services.ProgressService) *StatsSyncClient {
	baseURL := os.Getenv("STATS_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("STATS_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("PROGRESSION_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("PROGRESSION_SERVICE_TOKEN environment variable is required for stats sync")
	}

	return &StatsSyncClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.HTTPClient,
		Accounts:   accounts,
		Counters:   counters,
		Progress:   progress,
	}
}

// GetChangedCounters fetches counter values updated since the given time.
func (c *StatsSyncClient) GetChangedCounters(ctx context.Context, since time.Time) ([]CounterSnapshot, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/statistics/counters", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call stats service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("stats service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Counters []CounterSnapshot `json:"counters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode stats service response: %w", err)
	}
	return response.Counters, nil
}

// PollStatistics runs the resync loop until ctx is cancelled.
func PollStatistics(ctx context.Context, client *StatsSyncClient, pollInterval time.Duration) {
	log.Println("Starting statistics counter polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Statistics polling stopped.")
			return
		case <-ticker.C:
			started := time.Now().UTC()
			snapshots, err := client.GetChangedCounters(ctx, lastSyncTime)
			if err != nil {
				log.Printf("[STATS_SYNC] fetch failed: %v", err)
				continue
			}
			if len(snapshots) == 0 {
				lastSyncTime = started
				continue
			}

			applied := 0
			for _, snap := range snapshots {
				if err := client.applySnapshot(snap); err != nil {
					log.Printf("[STATS_SYNC] failed to apply %s for player %s: %v", snap.CounterKey, snap.PlayerUUID, err)
					continue
				}
				applied++
			}
			log.Printf("[STATS_SYNC] applied %d/%d counter snapshots", applied, len(snapshots))
			lastSyncTime = started
		}
	}
}

// applySnapshot resolves the platform identity, overwrites the local
// counter with the authoritative value and re-derives dependent progress.
func (c *StatsSyncClient) applySnapshot(snap CounterSnapshot) error {
	userID, err := c.Accounts.ResolveExternal("MC", snap.PlayerUUID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			// Player has not linked an account yet; nothing to sync.
			return nil
		}
		return err
	}

	if err := c.Counters.Set(c.Counters.DB, userID, snap.CounterKey, snap.Value); err != nil {
		return err
	}
	c.Progress.SyncFromCounter(userID, snap.CounterKey)
	return nil
}
