// Package progress defines the event structures emitted by search runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageSearchStart Stage = "SEARCH_START"
	StageSearchDone  Stage = "SEARCH_DONE"
	StageSiteStart   Stage = "SITE_START"
	StageSiteDone    Stage = "SITE_DONE"
	StageSiteError   Stage = "SITE_ERROR"
)

// Event captures a single milestone of a search run.
type Event struct {
	// SearchID identifies one search run using the 16-byte UUID form.
	SearchID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Query is the normalized search phrase, set on search-level events.
	Query string
	// Site scopes site-level events to one site name.
	Site string
	// Strategy names the stage that produced a site's results.
	Strategy string
	// Results counts extracted or merged results for done events.
	Results int
	// Dur captures execution latency for done events.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SearchID == [16]byte{} {
		return errors.New("search id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSearchStart, StageSearchDone:
	case StageSiteStart, StageSiteDone, StageSiteError:
		if e.Site == "" {
			return fmt.Errorf("%s requires site", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Results < 0 {
		return errors.New("result count must be >= 0")
	}
	return nil
}

// SearchUUID converts the binary search ID to uuid.UUID for display.
func (e Event) SearchUUID() uuid.UUID {
	return uuid.UUID(e.SearchID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
