package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeParticipant AccountScope = iota
	AccountScopePool
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Participant sub-types
	SubTypeWallet AccountSubType = iota

	// Pool sub-types
	SubTypeCustody

	// External sub-types
	SubTypeTreasury
	SubTypeReserveFund
	SubTypeArbitrator
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDC": 1,
		"USDT": 2,
		"WBTC": 3,
		"EURS": 4,
		"DAI":  5,
	}
	idToAsset = map[AssetID]string{
		1: "USDC",
		2: "USDT",
		3: "WBTC",
		4: "EURS",
		5: "DAI",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID [common.AddressLength]byte // address for participants and external funds, pool id for pools
	SubType  AccountSubType
	AssetID  AssetID
}

// NewWalletAccountKey creates a key for a participant's wallet
func NewWalletAccountKey(owner common.Address, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeParticipant,
		EntityID: owner,
		SubType:  SubTypeWallet,
		AssetID:  assetID,
	}
}

// NewCustodyAccountKey creates the key for capital a pool holds with the
// yield custodian.
func NewCustodyAccountKey(poolID uint64, assetID AssetID) AccountKey {
	var entityID [common.AddressLength]byte
	binary.BigEndian.PutUint64(entityID[common.AddressLength-8:], poolID)
	return AccountKey{
		Scope:    AccountScopePool,
		EntityID: entityID,
		SubType:  SubTypeCustody,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for an external fund (treasury, reserve)
func NewExternalAccountKey(fund common.Address, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeExternal,
		EntityID: fund,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeParticipant:
		return fmt.Sprintf("participant:%s:%s:%s", common.Address(k.EntityID).Hex(), k.subTypeName(), assetName)
	case AccountScopePool:
		poolID := binary.BigEndian.Uint64(k.EntityID[common.AddressLength-8:])
		return fmt.Sprintf("pool:%d:%s:%s", poolID, k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s:%s", k.subTypeName(), common.Address(k.EntityID).Hex(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeCustody:
		return "custody"
	case SubTypeTreasury:
		return "treasury"
	case SubTypeReserveFund:
		return "reserve"
	case SubTypeArbitrator:
		return "arbitrator"
	default:
		return "unknown"
	}
}
