package entity

import "time"

type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferCancelled OfferStatus = "cancelled"
)

type Offer struct {
	ID            string      `json:"id" firestore:"id"`
	Status        OfferStatus `json:"status" firestore:"status"`
	Budget        float64     `json:"budget" firestore:"budget"`
	EstimatedDays int         `json:"estimated_days" firestore:"estimatedDays"`
	ContractID    string      `json:"contract_id,omitempty" firestore:"contractId,omitempty"`
	DecidedBy     string      `json:"decided_by,omitempty" firestore:"decidedBy,omitempty"`
	DecidedAt     *time.Time  `json:"decided_at,omitempty" firestore:"decidedAt,omitempty"`
}
