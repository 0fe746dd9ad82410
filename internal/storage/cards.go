package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"

	"github.com/unkn0wn-root/tarotcache"
)

type Card struct {
	bun.BaseModel `bun:"table:tarot_cards"`

	ID               int64  `bun:",pk" json:"id"`
	Name             string `bun:",notnull" json:"name"`
	EnglishName      string `bun:",notnull" json:"englishName"`
	Type             string `bun:"card_type,notnull" json:"type"`
	Number           int    `bun:",notnull" json:"number"`
	RomanNumeral     string `json:"romanNumeral,omitempty"`
	ImageURL         string `json:"imageUrl"`
	ThumbnailURL     string `json:"thumbnailUrl"`
	UprightKeywords  string `json:"uprightKeywords"`
	ReversedKeywords string `json:"reversedKeywords"`
	UprightMeaning   string `json:"uprightMeaning,omitempty"`
	ReversedMeaning  string `json:"reversedMeaning,omitempty"`
}

// ListCards returns the catalog ordered by id, optionally filtered by type
// ("major", "minor").
func (db *DB) ListCards(ctx context.Context, cardType string) ([]Card, error) {
	var cards []Card
	q := db.bun.NewSelect().Model(&cards).Order("id ASC")
	if cardType != "" {
		q = q.Where("card_type = ?", cardType)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "storage: list cards")
	}
	return cards, nil
}

func (db *DB) CardByID(ctx context.Context, id int64) (Card, error) {
	var c Card
	err := db.bun.NewSelect().Model(&c).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Card{}, errors.Wrapf(ErrNotFound, "card %d", id)
	}
	if err != nil {
		return Card{}, errors.Wrapf(err, "storage: card %d", id)
	}
	return c, nil
}

// SearchCards matches keyword against names and keywords, at most 50 rows.
func (db *DB) SearchCards(ctx context.Context, keyword, cardType string) ([]Card, error) {
	var cards []Card
	like := "%" + keyword + "%"
	q := db.bun.NewSelect().Model(&cards).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("name LIKE ?", like).
				WhereOr("english_name LIKE ?", like).
				WhereOr("upright_keywords LIKE ?", like).
				WhereOr("reversed_keywords LIKE ?", like)
		}).
		Order("id ASC").
		Limit(50)
	if cardType != "" {
		q = q.Where("card_type = ?", cardType)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "storage: search cards")
	}
	return cards, nil
}

func (db *DB) CountCards(ctx context.Context) (int, error) {
	n, err := db.bun.NewSelect().Model((*Card)(nil)).Count(ctx)
	return n, errors.Wrap(err, "storage: count cards")
}

var majorArcana = []struct {
	name, english, roman string
}{
	{"愚者", "The Fool", "0"},
	{"魔术师", "The Magician", "I"},
	{"女祭司", "The High Priestess", "II"},
	{"皇后", "The Empress", "III"},
	{"皇帝", "The Emperor", "IV"},
	{"教皇", "The Hierophant", "V"},
	{"恋人", "The Lovers", "VI"},
	{"战车", "The Chariot", "VII"},
	{"力量", "Strength", "VIII"},
	{"隐士", "The Hermit", "IX"},
	{"命运之轮", "Wheel of Fortune", "X"},
	{"正义", "Justice", "XI"},
	{"倒吊人", "The Hanged Man", "XII"},
	{"死亡", "Death", "XIII"},
	{"节制", "Temperance", "XIV"},
	{"恶魔", "The Devil", "XV"},
	{"高塔", "The Tower", "XVI"},
	{"星星", "The Star", "XVII"},
	{"月亮", "The Moon", "XVIII"},
	{"太阳", "The Sun", "XIX"},
	{"审判", "Judgement", "XX"},
	{"世界", "The World", "XXI"},
}

// MajorArcanaCount is the size of the seeded catalog.
var MajorArcanaCount = len(majorArcana)

func (db *DB) seedCards(ctx context.Context) error {
	n, err := db.CountCards(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	cards := make([]Card, 0, len(majorArcana))
	for i, m := range majorArcana {
		cards = append(cards, Card{
			ID:               int64(i + 1),
			Name:             m.name,
			EnglishName:      m.english,
			Type:             "major",
			Number:           i,
			RomanNumeral:     m.roman,
			ImageURL:         fmt.Sprintf("/images/cards/major/%d.jpg", i),
			ThumbnailURL:     fmt.Sprintf("/images/cards/major/thumb/%d.jpg", i),
			UprightKeywords:  "启程,成长,觉察,命运",
			ReversedKeywords: "停滞,阻碍,混乱,考验",
			UprightMeaning:   m.name + "象征关键课题与生命阶段。正位代表积极推动与内在力量。",
			ReversedMeaning:  m.name + "逆位提示需要调整方向或处理阻碍。",
		})
	}
	if _, err := db.bun.NewInsert().Model(&cards).Exec(ctx); err != nil {
		return errors.Wrap(err, "storage: seed cards")
	}
	db.log.Info("seeded card catalog", tarotcache.Fields{"cards": len(cards)})
	return nil
}
