package execution

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/burstbot/types"
)

// historySize is how many requested directions are remembered
const historySize = 5

// History remembers recent trade requests for the positions parser
type History struct {
	mu         sync.RWMutex
	directions []types.Direction
	lastWager  decimal.Decimal
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{}
}

// Record appends a request, keeping the newest historySize directions
func (h *History) Record(req types.TradeRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.directions = append(h.directions, req.Direction)
	if len(h.directions) > historySize {
		h.directions = h.directions[len(h.directions)-historySize:]
	}
	h.lastWager = req.Wager
}

// Recent returns directions oldest first and the last requested wager
func (h *History) Recent() ([]types.Direction, decimal.Decimal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]types.Direction(nil), h.directions...), h.lastWager
}
