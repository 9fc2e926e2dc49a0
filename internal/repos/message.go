package repos

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/chatlore-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatlore-backend/internal/pkg/logger"
	"github.com/yungbote/chatlore-backend/internal/types"
)

// AuthorStat is one row of the per-chat author leaderboard used by
// nickname resolution.
type AuthorStat struct {
	DisplayName  string `json:"display_name"`
	Username     string `json:"username"`
	MessageCount int64  `json:"message_count"`
}

// ContextRow is one message inside the neighborhood of a retrieval hit.
type ContextRow struct {
	HitID             int64     `json:"hit_id"`
	ChatID            int64     `json:"chat_id"`
	ID                int64     `json:"id"`
	FromUserID        int64     `json:"from_user_id"`
	Username          *string   `json:"username,omitempty"`
	DisplayName       *string   `json:"display_name,omitempty"`
	Text              *string   `json:"text,omitempty"`
	DateUTC           time.Time `gorm:"column:date_utc" json:"date_utc"`
	IsForwarded       bool      `json:"is_forwarded"`
	ForwardOriginType *string   `json:"forward_origin_type,omitempty"`
	ForwardFromName   *string   `json:"forward_from_name,omitempty"`
}

type MessageRepo interface {
	// CreateOrIgnore inserts rows, silently skipping (chat_id, id) duplicates.
	CreateOrIgnore(dbc dbctx.Context, rows []*types.Message) error
	GetByIDs(dbc dbctx.Context, chatID int64, ids []int64) ([]*types.Message, error)
	ListRecent(dbc dbctx.Context, chatID int64, limit int) ([]*types.Message, error)
	ListSince(dbc dbctx.Context, chatID int64, since time.Time, limit int) ([]*types.Message, error)
	// ContextAround fetches, in one query, the `before` messages up to and
	// including each hit plus `after` messages following it. Only rows
	// with text are returned, tagged with the hit they belong to.
	ContextAround(dbc dbctx.Context, chatID int64, hitIDs []int64, before, after int) ([]ContextRow, error)
	// IDsByUserSince returns ids of the user's own recent messages.
	IDsByUserSince(dbc dbctx.Context, chatID, userID int64, since time.Time, limit int) ([]int64, error)
	// IDsMentioning returns ids of messages containing any pattern,
	// excluding the mentioned person's own messages.
	IDsMentioning(dbc dbctx.Context, chatID int64, patterns []string, excludeUserID *int64, excludeNames []string, limit int) ([]int64, error)
	// IDsInDateRange returns ids of messages inside [from, to) for
	// temporal pool building.
	IDsInDateRange(dbc dbctx.Context, chatID int64, from, to time.Time, limit int) ([]int64, error)
	TopAuthors(dbc dbctx.Context, chatID int64, limit int) ([]AuthorStat, error)
	// SearchILike is the last-resort lexical fallback over raw messages.
	SearchILike(dbc dbctx.Context, chatID int64, words []string, since time.Time, limit int) ([]*types.Message, error)
	UpdateDisplayName(dbc dbctx.Context, chatID *int64, oldName, newName string) (int64, error)
	CountForChat(dbc dbctx.Context, chatID int64) (int64, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *messageRepo) CreateOrIgnore(dbc dbctx.Context, rows []*types.Message) error {
	if len(rows) == 0 {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func (r *messageRepo) GetByIDs(dbc dbctx.Context, chatID int64, ids []int64) ([]*types.Message, error) {
	var out []*types.Message
	if len(ids) == 0 {
		return out, nil
	}
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("chat_id = ? AND id IN ?", chatID, ids).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *messageRepo) ListRecent(dbc dbctx.Context, chatID int64, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*types.Message
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("chat_id = ? AND text IS NOT NULL", chatID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	// Restore chronological order for prompt assembly.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) ListSince(dbc dbctx.Context, chatID int64, since time.Time, limit int) ([]*types.Message, error) {
	var out []*types.Message
	q := r.conn(dbc).WithContext(dbc.Ctx).
		Where("chat_id = ? AND text IS NOT NULL AND date_utc >= ?", chatID, since).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (r *messageRepo) ContextAround(dbc dbctx.Context, chatID int64, hitIDs []int64, before, after int) ([]ContextRow, error) {
	if len(hitIDs) == 0 {
		return nil, nil
	}
	if before < 0 {
		before = 0
	}
	if after < 0 {
		after = 0
	}
	var out []ContextRow
	err := r.conn(dbc).WithContext(dbc.Ctx).Raw(`
		SELECT hit.id AS hit_id, m.* FROM unnest(?::bigint[]) AS hit(id)
		JOIN LATERAL (
			(SELECT * FROM messages b
			 WHERE b.chat_id = ? AND b.id <= hit.id AND b.text IS NOT NULL
			 ORDER BY b.id DESC LIMIT ?)
			UNION ALL
			(SELECT * FROM messages a
			 WHERE a.chat_id = ? AND a.id > hit.id AND a.text IS NOT NULL
			 ORDER BY a.id ASC LIMIT ?)
		) m ON true
		ORDER BY hit.id ASC, m.id ASC`,
		types.Int64Array(hitIDs), chatID, before+1, chatID, after,
	).Scan(&out).Error
	return out, err
}

func (r *messageRepo) IDsByUserSince(dbc dbctx.Context, chatID, userID int64, since time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("chat_id = ? AND from_user_id = ? AND text IS NOT NULL AND date_utc >= ?", chatID, userID, since).
		Order("date_utc DESC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *messageRepo) IDsMentioning(dbc dbctx.Context, chatID int64, patterns []string, excludeUserID *int64, excludeNames []string, limit int) ([]int64, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	q := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("chat_id = ? AND text IS NOT NULL", chatID)

	like := r.db.Where("text ILIKE ?", "%"+patterns[0]+"%")
	for _, p := range patterns[1:] {
		like = like.Or("text ILIKE ?", "%"+p+"%")
	}
	q = q.Where(like)

	if excludeUserID != nil {
		q = q.Where("from_user_id <> ?", *excludeUserID)
	}
	for _, name := range excludeNames {
		if name = strings.TrimSpace(name); name != "" {
			q = q.Where("(display_name IS NULL OR lower(display_name) <> lower(?)) AND (username IS NULL OR lower(username) <> lower(?))", name, name)
		}
	}
	var ids []int64
	err := q.Order("date_utc DESC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

func (r *messageRepo) IDsInDateRange(dbc dbctx.Context, chatID int64, from, to time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []int64
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("chat_id = ? AND text IS NOT NULL AND date_utc >= ? AND date_utc < ?", chatID, from, to).
		Order("date_utc DESC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *messageRepo) TopAuthors(dbc dbctx.Context, chatID int64, limit int) ([]AuthorStat, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []AuthorStat
	err := r.conn(dbc).WithContext(dbc.Ctx).Raw(`
		SELECT COALESCE(display_name, '') AS display_name,
		       COALESCE(username, '')     AS username,
		       COUNT(*)                   AS message_count
		FROM messages
		WHERE chat_id = ? AND (display_name IS NOT NULL OR username IS NOT NULL)
		GROUP BY display_name, username
		ORDER BY message_count DESC
		LIMIT ?`,
		chatID, limit,
	).Scan(&out).Error
	return out, err
}

func (r *messageRepo) SearchILike(dbc dbctx.Context, chatID int64, words []string, since time.Time, limit int) ([]*types.Message, error) {
	if len(words) == 0 {
		return nil, nil
	}
	q := r.conn(dbc).WithContext(dbc.Ctx).
		Where("chat_id = ? AND text IS NOT NULL AND date_utc >= ?", chatID, since)

	like := r.db.Where("text ILIKE ?", "%"+words[0]+"%")
	for _, w := range words[1:] {
		like = like.Or("text ILIKE ?", "%"+w+"%")
	}
	var out []*types.Message
	err := q.Where(like).Order("date_utc DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *messageRepo) UpdateDisplayName(dbc dbctx.Context, chatID *int64, oldName, newName string) (int64, error) {
	if strings.TrimSpace(oldName) == "" || strings.TrimSpace(newName) == "" {
		return 0, fmt.Errorf("rename: empty name")
	}
	q := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("display_name = ?", oldName)
	if chatID != nil {
		q = q.Where("chat_id = ?", *chatID)
	}
	res := q.Update("display_name", newName)
	return res.RowsAffected, res.Error
}

func (r *messageRepo) CountForChat(dbc dbctx.Context, chatID int64) (int64, error) {
	var n int64
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("chat_id = ?", chatID).
		Count(&n).Error
	return n, err
}
