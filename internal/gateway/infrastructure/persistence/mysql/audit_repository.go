package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// SubscriptionAuditPO 订阅审计表
type SubscriptionAuditPO struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	TxID      int64     `gorm:"column:tx_id;index"`
	Kind      string    `gorm:"column:kind;size:32;index"`
	Action    string    `gorm:"column:action;size:32"`
	SubKey    string    `gorm:"column:sub_key;size:128"`
	Detail    string    `gorm:"column:detail;size:512"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (SubscriptionAuditPO) TableName() string { return "subscription_audit" }

// AuditRepository implements the gateway's audit trail port on MySQL.
// It is write-only at runtime; nothing is ever read back to restore state.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, txID int64, kind, action, key, detail string) error {
	po := &SubscriptionAuditPO{
		TxID:   txID,
		Kind:   kind,
		Action: action,
		SubKey: key,
		Detail: detail,
	}
	return r.db.WithContext(ctx).Create(po).Error
}

// RecentByTx returns the newest audit rows for one transaction id, for the
// ops control surface.
func (r *AuditRepository) RecentByTx(ctx context.Context, txID int64, limit int) ([]SubscriptionAuditPO, error) {
	var rows []SubscriptionAuditPO
	err := r.db.WithContext(ctx).
		Where("tx_id = ?", txID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
