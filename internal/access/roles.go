package access

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Role identifiers are the keccak256 hash of the role name, so they match the
// identifiers the on-chain role administration uses.
var (
	InsurancePoolAdminRole = crypto.Keccak256Hash([]byte("INSURANCE_POOL_ADMIN_ROLE"))
	FundAdminRole          = crypto.Keccak256Hash([]byte("FUND_ADMIN_ROLE"))
	MinterRole             = crypto.Keccak256Hash([]byte("MINTER_ROLE"))
	CoverageProofAdminRole = crypto.Keccak256Hash([]byte("COVERAGE_PROOF_ADMIN_ROLE"))
)

var roleNames = map[common.Hash]string{
	InsurancePoolAdminRole: "INSURANCE_POOL_ADMIN_ROLE",
	FundAdminRole:          "FUND_ADMIN_ROLE",
	MinterRole:             "MINTER_ROLE",
	CoverageProofAdminRole: "COVERAGE_PROOF_ADMIN_ROLE",
}

// RoleName returns the readable name of a known role, or its hex id.
func RoleName(role common.Hash) string {
	if name, ok := roleNames[role]; ok {
		return name
	}
	return role.Hex()
}

// RoleChecker answers whether an account holds a role.
type RoleChecker interface {
	HasRole(role common.Hash, account common.Address) bool
}
