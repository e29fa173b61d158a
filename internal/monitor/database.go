package monitor

import (
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOccur(occur *ErrorOccur) error {
	return d.db.Create(occur).Error
}

// GetLiveErrors returns every ErrorOccur with no matching ErrorSolved,
// optionally filtered by account.
func (d *Database) GetLiveErrors(alias string) ([]ErrorOccur, error) {
	query := d.db.
		Where("occur_id NOT IN (?)", d.db.Model(&ErrorSolved{}).Select("occur_id"))
	if alias != "" {
		query = query.Where("account_alias = ?", alias)
	}
	var occurs []ErrorOccur
	if err := query.Order("id ASC").Find(&occurs).Error; err != nil {
		return nil, err
	}
	return occurs, nil
}

// HasLiveError reports whether the (class, account) pair already has an
// unresolved ledger entry. The monitor never duplicates a live entry.
func (d *Database) HasLiveError(class types.ErrorClass, alias string) (bool, error) {
	var count int64
	err := d.db.Model(&ErrorOccur{}).
		Where("error_class = ? AND account_alias = ?", class, alias).
		Where("occur_id NOT IN (?)", d.db.Model(&ErrorSolved{}).Select("occur_id")).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SolveOccurs closes the given ledger entries in one batched write.
func (d *Database) SolveOccurs(occurIDs []string, solvedOn string) error {
	if len(occurIDs) == 0 {
		return nil
	}
	solved := make([]ErrorSolved, 0, len(occurIDs))
	for _, id := range occurIDs {
		solved = append(solved, ErrorSolved{OccurID: id, SolvedOn: solvedOn})
	}
	return d.db.CreateInBatches(solved, 200).Error
}

// GetErroredQueues returns the date's failed and canceled queues carrying a
// diagnostic note or structured class.
func (d *Database) GetErroredQueues(tradeDate string) ([]types.Queue, error) {
	var queues []types.Queue
	err := d.db.
		Where("trade_date = ?", tradeDate).
		Where("status IN ?", []types.QueueStatus{types.QueueFailed, types.QueueCanceled}).
		Where("note <> '' OR error_class <> ''").
		Order("id ASC").
		Find(&queues).Error
	if err != nil {
		return nil, err
	}
	return queues, nil
}

// GetLatestQueues returns the most recent queue per account up to and
// including the trade date.
func (d *Database) GetLatestQueues(tradeDate string) (map[string]*types.Queue, error) {
	var queues []types.Queue
	err := d.db.
		Where("trade_date <= ?", tradeDate).
		Order("id DESC").
		Find(&queues).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[string]*types.Queue)
	for i := range queues {
		if _, seen := latest[queues[i].AccountAlias]; !seen {
			latest[queues[i].AccountAlias] = &queues[i]
		}
	}
	return latest, nil
}

// GetPasswordIncidentAccounts returns accounts whose order logs for the date
// carry password-class errors.
func (d *Database) GetPasswordIncidentAccounts(tradeDate string) (map[string]string, error) {
	var logs []types.OrderLog
	err := d.db.
		Where("trade_date = ? AND error_class = ?", tradeDate, types.ErrorClassPasswordIncident).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	accounts := make(map[string]string)
	for _, l := range logs {
		accounts[l.AccountAlias] = l.QueueID
	}
	return accounts, nil
}

// ListAccountsByStatus returns accounts in the given status.
func (d *Database) ListAccountsByStatus(status types.AccountStatus) ([]types.Account, error) {
	var accounts []types.Account
	if err := d.db.Where("status = ?", status).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (d *Database) UpdateAccount(account *types.Account) error {
	return d.db.Save(account).Error
}
