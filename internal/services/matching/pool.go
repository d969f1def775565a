// Package matching enumerates plausible (source, candidate) pairs from a
// session's transaction pool and resolves them into an exclusive match set
// via deterministic greedy assignment.
package matching

import (
	"fmt"

	"bank-reconciliation-engine/internal/models"
	"bank-reconciliation-engine/internal/services/scoring"
)

// Pool is the immutable snapshot of the two transaction sides a session
// reconciles over. Bank-side rows are the sources; ledger-side rows are the
// candidates.
type Pool struct {
	accounts map[uint]models.BankAccount
	bank     []models.Transaction
	ledger   []models.Transaction
}

func NewPool(accounts []models.BankAccount, txs []models.Transaction) *Pool {
	p := &Pool{accounts: make(map[uint]models.BankAccount, len(accounts))}
	for _, a := range accounts {
		p.accounts[a.ID] = a
	}
	for _, tx := range txs {
		switch tx.Side {
		case models.SideBank:
			p.bank = append(p.bank, tx)
		case models.SideLedger:
			p.ledger = append(p.ledger, tx)
		}
	}
	return p
}

// Sources returns the bank-side transactions in ingestion order.
func (p *Pool) Sources() []models.Transaction { return p.bank }

// Counterparts returns the ledger-side transactions.
func (p *Pool) Counterparts() []models.Transaction { return p.ledger }

// Party resolves a transaction's institution from its account. An unknown
// account is a per-transaction processing failure, not a pool-level one.
func (p *Pool) Party(tx models.Transaction) (scoring.Party, error) {
	acct, ok := p.accounts[tx.AccountID]
	if !ok {
		return scoring.Party{}, &models.ProcessingError{
			TransactionID: tx.ID,
			Err:           fmt.Errorf("account %d not in session pool", tx.AccountID),
		}
	}
	return scoring.Party{Tx: tx, Institution: acct.Institution}, nil
}
