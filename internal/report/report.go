package report

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderReport is one append-only structured diagnostic report per queue run,
// consumed by operational tooling.
type OrderReport struct {
	gorm.Model `json:"-"`
	ReportID   string    `gorm:"uniqueIndex" json:"report_id"`
	QueueID    string    `gorm:"index" json:"queue_id"`
	Body       string    `json:"body"` // JSON array of sections
	CreatedAt  time.Time `json:"created_at"`
}

// Section is one named block of report data.
type Section struct {
	Description string      `json:"description"`
	Data        interface{} `json:"data"`
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateReport(report *OrderReport) error {
	return d.db.Create(report).Error
}

func (d *Database) GetReportsByQueueID(queueID string) ([]OrderReport, error) {
	var reports []OrderReport
	err := d.db.Where("queue_id = ?", queueID).Order("id ASC").Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// Writer accumulates sections for one queue run and persists them in one row.
// The report is written before any state transition so a failed transition
// still leaves a diagnosable trail.
type Writer struct {
	db       *Database
	queueID  string
	sections []Section
}

// NewWriter starts a report for one queue run.
func NewWriter(db *Database, queueID string) *Writer {
	return &Writer{db: db, queueID: queueID}
}

// WriteBody appends one section to the report.
func (w *Writer) WriteBody(data interface{}, description string) {
	w.sections = append(w.sections, Section{Description: description, Data: data})
}

// Save persists the accumulated report.
func (w *Writer) Save() error {
	body, err := json.Marshal(w.sections)
	if err != nil {
		return err
	}
	return w.db.CreateReport(&OrderReport{
		ReportID: "RPT_" + uuid.New().String(),
		QueueID:  w.queueID,
		Body:     string(body),
	})
}
