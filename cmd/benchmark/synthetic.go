package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

var banks = []string{"GTB", "ZENITH", "ACCESS", "UBA", "FIRSTBANK"}

// Generate builds a labelled fixture of n alerts. Roughly one alert in ten
// has no counterpart; noise is the share of matched pairs whose
// transaction is perturbed (reference typo, later timestamp, rounded amount
// or missing account). Every alert also gets a decoy transaction with the
// same amount and day.
func Generate(n int, noise float64, seed int64) *Fixture {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	fx := &Fixture{}
	for i := range n {
		bank := banks[rng.IntN(len(banks))]
		amount := decimal.NewFromInt(int64(1000 + rng.IntN(10000)*50))
		at := base.Add(time.Duration(rng.IntN(30*24*60)) * time.Minute)
		ref := fmt.Sprintf("%s/TRF/2025/%06d", bank, i)
		last4 := fmt.Sprintf("%04d", rng.IntN(10000))

		alert := &LabelledAlert{Alert: *domain.NewAlert(fmt.Sprintf("alert-%d", i), amount, "NGN", at, ref)}
		alert.AccountLast4 = last4
		alert.BankCode = bank
		alert.EnrichmentConfidence = 0.7 + 0.3*rng.Float64()

		// Decoy: same amount and day, different everything else.
		decoy := domain.NewTransaction(fmt.Sprintf("decoy-%d", i), amount, "NGN",
			at.Add(time.Duration(rng.IntN(6*60)-3*60)*time.Minute),
			fmt.Sprintf("%s/POS/%08d", banks[rng.IntN(len(banks))], rng.IntN(1e8)))
		decoy.AccountLast4 = fmt.Sprintf("%04d", rng.IntN(10000))
		decoy.Source = "synthetic"
		fx.Transactions = append(fx.Transactions, decoy)

		if rng.Float64() < 0.1 {
			fx.Alerts = append(fx.Alerts, alert)
			continue
		}

		txn := domain.NewTransaction(fmt.Sprintf("txn-%d", i), amount, "NGN",
			at.Add(time.Duration(rng.IntN(30))*time.Minute), ref)
		txn.AccountLast4 = last4
		txn.BankCode = bank
		txn.Source = "synthetic"
		if rng.Float64() < noise {
			perturb(rng, txn)
		}

		alert.ExpectedTransactionID = txn.ID
		fx.Alerts = append(fx.Alerts, alert)
		fx.Transactions = append(fx.Transactions, txn)
	}
	return fx
}

func perturb(rng *rand.Rand, txn *domain.Transaction) {
	switch rng.IntN(4) {
	case 0:
		raw := []byte(txn.Reference.Raw)
		raw[rng.IntN(len(raw))] = 'X'
		txn.Reference = domain.NewReference(string(raw))
	case 1:
		txn.Timestamp = txn.Timestamp.Add(time.Duration(6+rng.IntN(30)) * time.Hour)
	case 2:
		txn.Amount = txn.Amount.Add(decimal.NewFromInt(int64(1 + rng.IntN(5))))
	case 3:
		txn.AccountLast4 = ""
	}
}
