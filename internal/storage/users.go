package storage

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"

	"github.com/unkn0wn-root/tarotcache/rendezvous"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        int64  `bun:",pk" json:"id"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
	IsVIP     bool   `bun:"is_vip" json:"isVip"`
}

func (db *DB) UserByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := db.bun.NewSelect().Model(&u).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, errors.Wrapf(ErrNotFound, "user %d", id)
	}
	if err != nil {
		return User{}, errors.Wrapf(err, "storage: user %d", id)
	}
	return u, nil
}

func (db *DB) UsersByIDs(ctx context.Context, ids []int64) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []User
	err := db.bun.NewSelect().Model(&users).Where("id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "storage: users by ids")
	}
	return users, nil
}

// UpsertUser inserts u or refreshes its display fields.
func (db *DB) UpsertUser(ctx context.Context, u User) error {
	_, err := db.bun.NewInsert().Model(&u).
		On("CONFLICT (id) DO UPDATE").
		Set("nickname = EXCLUDED.nickname").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("is_vip = EXCLUDED.is_vip").
		Exec(ctx)
	return errors.Wrapf(err, "storage: upsert user %d", u.ID)
}

// Directory resolves session participants to display identities.
type Directory struct{ DB *DB }

var _ rendezvous.Directory = Directory{}

// Identities returns what is known about userIDs. Unknown or non-numeric ids
// are absent from the result.
func (d Directory) Identities(ctx context.Context, userIDs ...string) (map[string]rendezvous.Identity, error) {
	ids := make([]int64, 0, len(userIDs))
	for _, s := range userIDs {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	users, err := d.DB.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]rendezvous.Identity, len(users))
	for _, u := range users {
		key := strconv.FormatInt(u.ID, 10)
		out[key] = rendezvous.Identity{UserID: key, Nickname: u.Nickname, AvatarURL: u.AvatarURL}
	}
	return out, nil
}
