package app

import (
	"sort"
	"sync"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/store"
)

// Display windows for the transient leaderboard signals.
const (
	DefaultLeaderBannerTTL = 2600 * time.Millisecond
	DefaultScorePulseTTL   = 600 * time.Millisecond
)

// LeaderboardEventKind tags the transient UI signals derived from ranking
// changes. These carry no scoring authority; score truth stays in the
// player documents.
type LeaderboardEventKind string

const (
	// EventNewLeader fires when the top-ranked player identity changes.
	EventNewLeader LeaderboardEventKind = "newLeader"
	// EventLeaderExpired clears the banner after its display window.
	EventLeaderExpired LeaderboardEventKind = "leaderExpired"
	// EventScorePulse fires when a player's known score changes.
	EventScorePulse LeaderboardEventKind = "scorePulse"
	// EventPulseExpired clears a player's highlight after its window.
	EventPulseExpired LeaderboardEventKind = "pulseExpired"
)

// LeaderboardEvent is one transient signal.
type LeaderboardEvent struct {
	Kind     LeaderboardEventKind `json:"kind"`
	PlayerID string               `json:"playerId,omitempty"`
	Name     string               `json:"name,omitempty"`
	Score    int                  `json:"score,omitempty"`
}

// LeaderboardAggregator recomputes the full ranking on every players push
// (no incremental patching) and raises leader-change and score-delta events
// with auto-expiring display windows. One aggregator serves one view; Close
// must be called when the view goes away.
type LeaderboardAggregator struct {
	sessionCode string
	bannerTTL   time.Duration
	pulseTTL    time.Duration
	clock       func() time.Time

	mu           sync.Mutex
	closed       bool
	prevLeaderID string
	prevScores   map[string]int
	bannerTimer  *time.Timer
	pulseTimers  map[string]*time.Timer

	events chan LeaderboardEvent
}

// AggregatorOption configures a LeaderboardAggregator.
type AggregatorOption func(*LeaderboardAggregator)

// WithDisplayWindows overrides the banner and pulse TTLs.
func WithDisplayWindows(banner, pulse time.Duration) AggregatorOption {
	return func(a *LeaderboardAggregator) {
		a.bannerTTL = banner
		a.pulseTTL = pulse
	}
}

// WithAggregatorClock injects a deterministic clock for ranking timestamps.
func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *LeaderboardAggregator) { a.clock = now }
}

func NewLeaderboardAggregator(sessionCode string, opts ...AggregatorOption) *LeaderboardAggregator {
	a := &LeaderboardAggregator{
		sessionCode: sessionCode,
		bannerTTL:   DefaultLeaderBannerTTL,
		pulseTTL:    DefaultScorePulseTTL,
		clock:       time.Now,
		prevScores:  make(map[string]int),
		pulseTimers: make(map[string]*time.Timer),
		events:      make(chan LeaderboardEvent, 32),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Events delivers the transient signals. The channel is closed by Close.
func (a *LeaderboardAggregator) Events() <-chan LeaderboardEvent {
	return a.events
}

// PlayersFromSnapshots decodes a players-collection push.
func PlayersFromSnapshots(snaps []store.Snapshot) []domain.Player {
	players := make([]domain.Player, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists {
			continue
		}
		players = append(players, playerFromSnapshot(snap))
	}
	return players
}

// Apply recomputes the ranking from the full player set and emits any
// leader-change or score-delta signals the recompute reveals.
func (a *LeaderboardAggregator) Apply(players []domain.Player) domain.Ranking {
	entries := make([]domain.Player, len(players))
	copy(entries, players)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		return entries[i].ID < entries[j].ID
	})

	ranking := domain.Ranking{
		SessionCode: a.sessionCode,
		Entries:     entries,
		UpdatedAt:   a.clock(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ranking
	}

	a.detectLeaderChangeLocked(entries)
	a.detectScoreDeltasLocked(entries)
	return ranking
}

// detectLeaderChangeLocked compares top-ranked ids across recomputes. One
// event per actual identity change; score churn below the leader is silent.
func (a *LeaderboardAggregator) detectLeaderChangeLocked(entries []domain.Player) {
	var leaderID string
	if len(entries) > 0 {
		leaderID = entries[0].ID
	}

	if leaderID != "" && a.prevLeaderID != "" && a.prevLeaderID != leaderID {
		a.emitLocked(LeaderboardEvent{
			Kind:     EventNewLeader,
			PlayerID: leaderID,
			Name:     entries[0].Name,
			Score:    entries[0].Score,
		})
		// A pending expiry is cancelled and restarted so the banner window
		// always measures from the latest change.
		if a.bannerTimer != nil {
			a.bannerTimer.Stop()
		}
		a.bannerTimer = time.AfterFunc(a.bannerTTL, func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.bannerTimer = nil
			a.emitLocked(LeaderboardEvent{Kind: EventLeaderExpired})
		})
	}
	a.prevLeaderID = leaderID
}

// detectScoreDeltasLocked pulses each player whose known score changed,
// replacing any in-flight expiry so rapid consecutive updates do not flicker.
func (a *LeaderboardAggregator) detectScoreDeltasLocked(entries []domain.Player) {
	for _, p := range entries {
		prev, known := a.prevScores[p.ID]
		if known && prev != p.Score {
			a.emitLocked(LeaderboardEvent{Kind: EventScorePulse, PlayerID: p.ID, Score: p.Score})

			if t, ok := a.pulseTimers[p.ID]; ok {
				t.Stop()
			}
			playerID := p.ID
			a.pulseTimers[playerID] = time.AfterFunc(a.pulseTTL, func() {
				a.mu.Lock()
				defer a.mu.Unlock()
				delete(a.pulseTimers, playerID)
				a.emitLocked(LeaderboardEvent{Kind: EventPulseExpired, PlayerID: playerID})
			})
		}
		a.prevScores[p.ID] = p.Score
	}
}

func (a *LeaderboardAggregator) emitLocked(ev LeaderboardEvent) {
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
	default:
		select {
		case <-a.events:
		default:
		}
		a.events <- ev
	}
}

// Close stops all pending expiry timers and closes the event stream.
func (a *LeaderboardAggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	if a.bannerTimer != nil {
		a.bannerTimer.Stop()
		a.bannerTimer = nil
	}
	for id, t := range a.pulseTimers {
		t.Stop()
		delete(a.pulseTimers, id)
	}
	close(a.events)
}
