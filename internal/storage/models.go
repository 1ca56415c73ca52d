package storage

// Row types mirror the SQLite tables column for column. Decimal amounts and
// timestamps are stored as text to keep them exact.

type TransactionRow struct {
	ID              int64
	Date            string
	MonthKey        string
	Description     string
	Amount          string
	Category        string
	Source          string
	IdentityHash    string
	RankWithinBatch int64
	BatchID         string
	ImportTimestamp string
	StorageKey      string
}

type MonthlyAggregateRow struct {
	MonthKey             string
	InvestmentTotal      string
	Total                string
	TotalMinusInvestment string
	UpdatedAt            string
}

type MonthlyCategoryTotalRow struct {
	MonthKey string
	Category string
	Total    string
}

type BalanceSnapshotRow struct {
	ID          int64
	AccountID   string
	BalanceDate string
	MonthKey    string
	Amount      string
	Source      string
	Confidence  string
	Notes       string
	CreatedAt   string
}

type SourceUploadRow struct {
	FileHash   string
	Filename   string
	Source     string
	BatchID    string
	ImportedAt string
}
