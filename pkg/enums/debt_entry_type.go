package enums

// DebtEntryType distinguishes rows in the customer debt ledger.
type DebtEntryType string

const (
	// DebtEntryOrderDebt is posted once when an order completes.
	DebtEntryOrderDebt DebtEntryType = "order_debt"
	// DebtEntryPaymentCredit offsets debt for payments taken after completion.
	DebtEntryPaymentCredit DebtEntryType = "payment_credit"
)

func (t DebtEntryType) String() string {
	return string(t)
}

func (t DebtEntryType) IsValid() bool {
	return t == DebtEntryOrderDebt || t == DebtEntryPaymentCredit
}
