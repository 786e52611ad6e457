package entity

import "time"

type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
)

// EscrowHold mirrors the ledger record of funds held for one contract.
type EscrowHold struct {
	ContractID  string       `json:"contract_id" firestore:"contractId"`
	Amount      float64      `json:"amount" firestore:"amount"`
	Status      EscrowStatus `json:"status" firestore:"status"`
	FundedBy    string       `json:"funded_by" firestore:"fundedBy"`
	Beneficiary string       `json:"beneficiary" firestore:"beneficiary"`
	HeldAt      time.Time    `json:"held_at" firestore:"heldAt"`
	ReleasedAt  *time.Time   `json:"released_at,omitempty" firestore:"releasedAt,omitempty"`
}
