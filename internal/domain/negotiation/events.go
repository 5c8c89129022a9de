package negotiation

// Event type constants shared by the message queue and websocket surfaces.
const (
	EventRoundReady    = "negotiation.round.ready"
	EventRoundAdvanced = "negotiation.round.advanced"
	EventFinalized     = "negotiation.finalized"
)

// RoundReady is published when both parties have completed a round and the
// processed flag was won; it is consumed by the engine exactly once.
type RoundReady struct {
	ContractID string `json:"contract_id"`
	Round      int    `json:"round"`
}

// RoundAdvanced is emitted after a new round snapshot becomes visible.
type RoundAdvanced struct {
	ContractID    string `json:"contract_id"`
	Round         int    `json:"round"`
	RevisedOrders []int  `json:"revised_orders"`
	FailedOrders  []int  `json:"failed_orders,omitempty"`
}

// NegotiationFinalized is emitted once per contract when the final contract
// is written. Forced is true when the round cap ended the negotiation with
// outstanding flags.
type NegotiationFinalized struct {
	ContractID string `json:"contract_id"`
	Round      int    `json:"round"`
	Forced     bool   `json:"forced"`
}
