package validation

// Fields of the card transaction feed.
const (
	FieldCardPrivatePAN       = "cardprivatepan"
	FieldCardProTransactionID = "cardprotransactionid"
	FieldCategory             = "category"
	FieldCreatedAt            = "createdat"
	FieldCurrency             = "currency"
	FieldEventType            = "eventtype"
	FieldExpenseID            = "jenjiexpenseid"
	FieldLastUpdatedAt        = "lastupdatedat"
	FieldSeller               = "seller"
	FieldState                = "state"
	FieldTaxRecoverable       = "taxrecoverable"
	FieldTime                 = "time"
	FieldTotal                = "total"
	FieldTotalWithoutTax      = "totalwithouttax"
)

// TransactionRules returns the rule set of the card transaction feed.
func TransactionRules() []Rule {
	return []Rule{
		Required(FieldCardPrivatePAN),
		Required(FieldCardProTransactionID),
		Required(FieldCategory),
		Timestamp(FieldCreatedAt),
		Required(FieldCurrency),
		Required(FieldEventType),
		Required(FieldExpenseID),
		Timestamp(FieldLastUpdatedAt),
		Required(FieldSeller),
		Required(FieldState),
		Range(FieldTaxRecoverable, 0, 1),
		Timestamp(FieldTime),
		Decimal(FieldTotal),
		Decimal(FieldTotalWithoutTax),
	}
}

// Transaction is the columnar row of a valid transaction record.
type Transaction struct {
	CardPrivatePAN       string  `parquet:"cardprivatepan"`
	CardProTransactionID string  `parquet:"cardprotransactionid"`
	Category             string  `parquet:"category"`
	CreatedAt            string  `parquet:"createdat"`
	Currency             string  `parquet:"currency"`
	EventType            string  `parquet:"eventtype"`
	ExpenseID            string  `parquet:"jenjiexpenseid"`
	LastUpdatedAt        string  `parquet:"lastupdatedat"`
	Seller               string  `parquet:"seller"`
	State                string  `parquet:"state"`
	TaxRecoverable       float64 `parquet:"taxrecoverable"`
	Time                 string  `parquet:"time"`
	Total                string  `parquet:"total"`
	TotalWithoutTax      string  `parquet:"totalwithouttax"`
}

// NewTransaction maps rec onto a Transaction. Fields outside the schema are
// dropped; missing or mistyped fields are left at their zero value.
func NewTransaction(rec Record) Transaction {
	str := func(field string) string {
		s, _ := rec[field].(string)
		return s
	}
	tax, _ := Number(rec[FieldTaxRecoverable])
	return Transaction{
		CardPrivatePAN:       str(FieldCardPrivatePAN),
		CardProTransactionID: str(FieldCardProTransactionID),
		Category:             str(FieldCategory),
		CreatedAt:            str(FieldCreatedAt),
		Currency:             str(FieldCurrency),
		EventType:            str(FieldEventType),
		ExpenseID:            str(FieldExpenseID),
		LastUpdatedAt:        str(FieldLastUpdatedAt),
		Seller:               str(FieldSeller),
		State:                str(FieldState),
		TaxRecoverable:       tax,
		Time:                 str(FieldTime),
		Total:                str(FieldTotal),
		TotalWithoutTax:      str(FieldTotalWithoutTax),
	}
}
