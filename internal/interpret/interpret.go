// Package interpret turns a card spread into a reading. Prompting a language
// model is out of scope here; Local produces a deterministic reading from the
// cards alone and is what the service runs with.
package interpret

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var ErrNoCards = errors.New("interpret: no cards")

// CardSelection is one drawn card as the client submits it.
type CardSelection struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	EnglishName string `json:"englishName,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	IsReversed  bool   `json:"isReversed"`
}

type Request struct {
	Spread    string          `json:"spread"`
	Questions []string        `json:"questions"`
	Cards     []CardSelection `json:"cards"`
}

type Result struct {
	Spread         string          `json:"spread"`
	Questions      []string        `json:"questions"`
	Cards          []CardSelection `json:"cards"`
	Interpretation string          `json:"interpretation"`
	Advice         string          `json:"advice"`
	Keywords       []string        `json:"keywords"`
	Confidence     float64         `json:"confidence"`
	Mood           string          `json:"mood"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type Interpreter interface {
	Interpret(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to Interpreter.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Interpret(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

var relationshipPositions = []string{
	"你的现状", "你的感受", "你的期待",
	"对方的现状", "对方的感受", "对方的期待",
}

var spreadNames = map[string]string{
	"single":       "单张牌",
	"three":        "三张牌阵",
	"relationship": "关系牌阵",
	"career":       "事业牌阵",
}

// Local is a deterministic Interpreter: the same spread always reads the same.
type Local struct {
	Now func() time.Time
}

func (l Local) Interpret(ctx context.Context, req Request) (Result, error) {
	if len(req.Cards) == 0 {
		return Result{}, ErrNoCards
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	upright := 0
	lines := make([]string, 0, len(req.Cards))
	for i, c := range req.Cards {
		pos := fmt.Sprintf("第%d张", i+1)
		if req.Spread == "relationship" && i < len(relationshipPositions) {
			pos = relationshipPositions[i]
		}
		orientation, meaning := "正位", "积极的发展方向"
		if c.IsReversed {
			orientation, meaning = "逆位", "需要克服的挑战"
		} else {
			upright++
		}
		lines = append(lines, fmt.Sprintf("%s：%s（%s）%s，暗示着%s", pos, c.Name, c.EnglishName, orientation, meaning))
	}

	ratio := float64(upright) / float64(len(req.Cards))
	mood, advice := "neutral", "保持开放的心态，相信直觉的指引。"
	switch {
	case ratio >= 2.0/3.0:
		mood, advice = "positive", "勇敢地迈出下一步，机会正在靠近。"
	case ratio < 1.0/3.0:
		mood, advice = "negative", "耐心等待合适的时机，先处理眼前的阻碍。"
	}

	spread := spreadNames[req.Spread]
	if spread == "" {
		spread = req.Spread
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	return Result{
		Spread:         req.Spread,
		Questions:      req.Questions,
		Cards:          req.Cards,
		Interpretation: fmt.Sprintf("根据%s的%d张牌：\n%s", spread, len(req.Cards), strings.Join(lines, "；\n")),
		Advice:         advice,
		Keywords:       []string{"直觉", "指引", "机遇", "成长"},
		Confidence:     0.75 + 0.2*ratio,
		Mood:           mood,
		CreatedAt:      now().UTC(),
	}, nil
}
