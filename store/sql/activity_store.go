package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-login/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultActivityPerPage = 25

type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*loginActivityRecord]
	now  func() time.Time
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*loginActivityRecord](db, loginActivityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid login activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Record persists one terminal login or logout. Entries without a UUID id
// are assigned a fresh one.
func (s *ActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	record := activityRecordFromDomain(entry)
	if record.Action == "" {
		return fmt.Errorf("sqlstore: activity action is required")
	}
	if record.Status == "" {
		record.Status = core.ActivityStatusOK
	}
	if parseUUID(record.ID) == uuid.Nil {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *ActivityStore) ListActivity(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s == nil || s.repo == nil {
		return core.ActivityPage{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	page, perPage := normalizePaging(filter)
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if filter.Slot != nil {
		selectors = append(selectors, repository.SelectBy("slot", "=", strconv.Itoa(int(*filter.Slot))))
	}
	if federatedID := strings.TrimSpace(filter.FederatedID); federatedID != "" {
		selectors = append(selectors, repository.SelectBy("federated_id", "=", federatedID))
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if filter.Since != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.Since.UTC()))
	}
	if filter.Until != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.Until.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.ActivityPage{}, err
	}
	items := make([]core.ActivityEntry, 0, len(records))
	for _, record := range records {
		items = append(items, activityRecordToDomain(record))
	}
	hasMore := offset+len(items) < total
	nextOffset := 0
	if hasMore {
		nextOffset = offset + len(items)
	}
	return core.ActivityPage{
		Items:      items,
		Total:      total,
		NextOffset: nextOffset,
		HasMore:    hasMore,
	}, nil
}

// Prune drops entries older than the TTL, then trims the oldest rows until
// at most RowCap remain.
func (s *ActivityStore) Prune(ctx context.Context, policy core.ActivityRetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: activity store is not configured")
	}
	deleted := 0

	if policy.TTL > 0 {
		cutoff := s.now().Add(-policy.TTL)
		res, err := s.db.NewDelete().
			Model((*loginActivityRecord)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if policy.RowCap > 0 {
		total, err := s.db.NewSelect().Model((*loginActivityRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		excess := total - policy.RowCap
		if excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM login_activity_entries WHERE id IN (SELECT id FROM login_activity_entries ORDER BY created_at ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}

	return deleted, nil
}

func normalizePaging(filter core.ActivityFilter) (int, int) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultActivityPerPage
	}
	return page, perPage
}

func activityRecordFromDomain(entry core.ActivityEntry) *loginActivityRecord {
	return &loginActivityRecord{
		ID:               strings.TrimSpace(entry.ID),
		AttemptID:        strings.TrimSpace(entry.AttemptID),
		Slot:             int(entry.Slot),
		Action:           strings.TrimSpace(entry.Action),
		System:           strings.TrimSpace(entry.System),
		SubType:          strings.TrimSpace(entry.SubType),
		Status:           strings.TrimSpace(entry.Status),
		FederatedID:      strings.TrimSpace(entry.FederatedID),
		PrimaryAccountID: strings.TrimSpace(entry.PrimaryAccountID),
		Error:            entry.Error,
		Metadata:         copyAnyMap(entry.Metadata),
		CreatedAt:        entry.CreatedAt.UTC(),
	}
}

func activityRecordToDomain(record *loginActivityRecord) core.ActivityEntry {
	if record == nil {
		return core.ActivityEntry{}
	}
	return core.ActivityEntry{
		ID:               record.ID,
		AttemptID:        record.AttemptID,
		Slot:             core.SlotIndex(record.Slot),
		Action:           record.Action,
		System:           record.System,
		SubType:          record.SubType,
		Status:           record.Status,
		FederatedID:      record.FederatedID,
		PrimaryAccountID: record.PrimaryAccountID,
		Error:            record.Error,
		Metadata:         copyAnyMap(record.Metadata),
		CreatedAt:        record.CreatedAt.UTC(),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
