// internal/signal/signal.go
package signal

import "time"

// Action is the trade direction a signal asks for.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Kind distinguishes the first sighting of a mint/action pair from repeats.
type Kind string

const (
	KindInitial Kind = "initial"
	KindUpdate  Kind = "update"
)

// Classification is the dedup verdict attached to a signal before queuing.
// Version counts sightings: 1 for the initial, 2 for the first update.
type Classification struct {
	Kind    Kind
	Version int
}

// Signal is one trade intent. Amount is a SOL quantity like "0.00002 SOL"
// for buys and a percent-of-holdings like "50" for sells. Immutable after
// creation except for Classification.
type Signal struct {
	ID              string
	ContractAddress string
	Action          Action
	Amount          string
	Platform        string
	Chain           string
	Timestamp       time.Time
	Classification  Classification

	// LedgerID links a scheduler-emitted sell back to the position row it
	// liquidates. Zero for signals with no backing row.
	LedgerID int64
}

func (s *Signal) IsSell() bool { return s.Action == ActionSell }
