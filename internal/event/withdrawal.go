package event

// RequestWithdrawal starts the cooldown for redeeming Shares LP shares.
type RequestWithdrawal struct {
	Meta
	Shares int64 `json:"shares"`
}

func (r *RequestWithdrawal) CommandType() CommandType {
	return CommandTypeRequestWithdrawal
}

// ExecuteWithdrawal redeems the caller's pending request once unlocked.
type ExecuteWithdrawal struct {
	Meta
}

func (e *ExecuteWithdrawal) CommandType() CommandType {
	return CommandTypeExecuteWithdrawal
}
