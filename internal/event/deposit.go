package event

// Deposit adds liquidity to the pool in exchange for LP shares.
type Deposit struct {
	Meta
	Amount int64 `json:"amount"`
}

func (d *Deposit) CommandType() CommandType {
	return CommandTypeDeposit
}
