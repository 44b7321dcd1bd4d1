package services

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/shopspring/decimal"
	"github.com/souqly/backend/internal/models"
)

// PayoutService exports the settlement of an escrow record as an ISO 20022
// pacs.008 credit transfer, one transaction per payee credit.
type PayoutService struct {
	db        *sql.DB
	escrow    *EscrowService
	currency  string
	debtorBIC string
}

func NewPayoutService(db *sql.DB, escrow *EscrowService, currency, debtorBIC string) *PayoutService {
	return &PayoutService{
		db:        db,
		escrow:    escrow,
		currency:  currency,
		debtorBIC: debtorBIC,
	}
}

// ToMajorUnits converts minor units to a decimal amount with two places.
func ToMajorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// SettledPayouts returns the payee credits posted when the record settled.
func (s *PayoutService) SettledPayouts(ctx context.Context, vertical models.Vertical, id int64) ([]models.Payout, error) {
	rec, err := s.escrow.GetRecord(ctx, vertical, id)
	if err != nil {
		return nil, err
	}
	lc, _ := LifecycleFor(vertical)
	if rec.Status != lc.Settles {
		return nil, fmt.Errorf("%w: %s %d is %s, not %s", ErrInvalidState, vertical, id, rec.Status, lc.Settles)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.user_id, e.amount, e.reference
		FROM ledger_entries e
		JOIN accounts a ON a.id = e.account_id
		WHERE e.reference LIKE $1 AND e.direction = 'CREDIT'
		ORDER BY a.user_id`, payoutReferencePattern(vertical, id))
	if err != nil {
		return nil, fmt.Errorf("list payouts of %s %d: %w", vertical, id, err)
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		var p models.Payout
		if err := rows.Scan(&p.PayeeID, &p.Amount, &p.Reference); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(payouts) == 0 {
		return nil, fmt.Errorf("%w: %s %d paid nothing out", ErrNotFound, vertical, id)
	}
	return payouts, nil
}

// BuildPayoutInstruction creates the pacs.008 document for a settled record.
func (s *PayoutService) BuildPayoutInstruction(ctx context.Context, vertical models.Vertical, id int64) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	payouts, err := s.SettledPayouts(ctx, vertical, id)
	if err != nil {
		return nil, err
	}
	return s.CreatePacs008(payouts, time.Now()), nil
}

// CreatePacs008 builds a pacs.008.001.08 message paying out every payout.
func (s *PayoutService) CreatePacs008(payouts []models.Payout, now time.Time) *pacs_v08.FIToFICustomerCreditTransferV08 {
	settlementDate := now
	ccy := common.ActiveCurrencyCode(s.currency)

	total := decimal.Zero
	transactions := make([]pacs_v08.CreditTransferTransaction39, 0, len(payouts))
	for _, p := range payouts {
		amount := ToMajorUnits(p.Amount)
		total = total.Add(amount)

		reference := common.Max35Text(p.Reference)
		creditor := common.Max140Text(fmt.Sprintf("WALLET-%d", p.PayeeID))
		transactions = append(transactions, pacs_v08.CreditTransferTransaction39{
			PmtId: pacs_v08.PaymentIdentification7{
				InstrId:    &reference,
				EndToEndId: reference,
				TxId:       &reference,
			},
			IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   ccy,
				Value: amount.InexactFloat64(),
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			ChrgBr:        "SLEV",
			DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
				FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
					BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.debtorBIC)}[0],
				},
			},
			Dbtr: pacs_v08.PartyIdentification135{
				Nm: &[]common.Max140Text{"SOUQLY ESCROW"}[0],
			},
			CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
				FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
					ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
						MmbId: common.Max35Text(strconv.FormatInt(p.PayeeID, 10)),
					},
				},
			},
			Cdtr: pacs_v08.PartyIdentification135{
				Nm: &creditor,
			},
		})
	}

	return &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(strings.ReplaceAll(uuid.New().String(), "-", "")),
			CreDtTm: common.ISODateTime(now),
			NbOfTxs: common.Max15NumericText(strconv.Itoa(len(transactions))),
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   ccy,
				Value: total.InexactFloat64(),
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: transactions,
	}
}

// ConvertToXML renders an ISO 20022 document with an XML header.
func (s *PayoutService) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
