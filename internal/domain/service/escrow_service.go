package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/pkg/errors"
)

// EscrowService is the escrow collaborator. A failed call blocks the contract
// transition that depends on it.
type EscrowService interface {
	Fund(ctx context.Context, contract *entity.Contract) error
	Release(ctx context.Context, contract *entity.Contract) error
}

// LedgerEscrowService records holds in the escrow ledger. Both calls are
// idempotent per contract so they are safe inside retried transactions.
type LedgerEscrowService struct {
	repo repository.EscrowRepository
}

func NewLedgerEscrowService(repo repository.EscrowRepository) *LedgerEscrowService {
	return &LedgerEscrowService{repo: repo}
}

func (s *LedgerEscrowService) Fund(ctx context.Context, contract *entity.Contract) error {
	if contract.Budget <= 0 {
		return nil
	}

	hold, err := s.repo.Hold(ctx, &entity.EscrowHold{
		ContractID:  contract.ID,
		Amount:      contract.Budget,
		FundedBy:    contract.BrandID,
		Beneficiary: contract.CreatorID,
		HeldAt:      time.Now(),
	})
	if err != nil {
		log.Printf("Escrow Fund Error: contract=%s, error=%v", contract.ID, err)
		return err
	}
	if hold.Amount != contract.Budget {
		return errors.Precondition(fmt.Sprintf("escrow already holds %.2f for this contract", hold.Amount))
	}

	log.Printf("Escrow funded: contract=%s, amount=%.2f", contract.ID, hold.Amount)
	return nil
}

func (s *LedgerEscrowService) Release(ctx context.Context, contract *entity.Contract) error {
	if contract.Budget <= 0 {
		return nil
	}

	if _, err := s.repo.Release(ctx, contract.ID, time.Now()); err != nil {
		log.Printf("Escrow Release Error: contract=%s, error=%v", contract.ID, err)
		return err
	}

	log.Printf("Escrow released: contract=%s, beneficiary=%s", contract.ID, contract.CreatorID)
	return nil
}
