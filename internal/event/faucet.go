package event

// Faucet credits the sender with test asset and approves the pool to pull
// it. Only accepted on deployments with the faucet enabled.
type Faucet struct {
	Meta
	Amount int64 `json:"amount"`
}

func (f *Faucet) CommandType() CommandType {
	return CommandTypeFaucet
}
