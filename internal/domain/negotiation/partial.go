package negotiation

import "fmt"

// PartialRevisionError reports clause orders whose revision exhausted all
// retries. The round still advanced; the listed clauses carried over with
// their prior content and stay eligible for the next round.
type PartialRevisionError struct {
	ContractID string
	Round      int
	Orders     []int
}

func (e *PartialRevisionError) Error() string {
	return fmt.Sprintf("round %d of contract %s advanced with %d unrevised clause(s): %v",
		e.Round, e.ContractID, len(e.Orders), e.Orders)
}
