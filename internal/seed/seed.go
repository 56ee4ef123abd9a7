// Package seed 从 YAML 文件导入初始用户与关卡，用于开发环境与演示数据
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"playstats_backend/internal/model"
	"playstats_backend/internal/util"
	"playstats_backend/pkg/logger"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type Fixture struct {
	Users  []UserFixture  `yaml:"users" validate:"dive"`
	Levels []LevelFixture `yaml:"levels" validate:"dive"`
}

type UserFixture struct {
	Name string         `yaml:"name" validate:"required"`
	Role model.UserRole `yaml:"role" validate:"omitempty,oneof=player admin"`
}

type LevelFixture struct {
	Name string `yaml:"name" validate:"required"`
	// 作者的用户名，须出现在 users 中或已存在于数据库
	Author     string   `yaml:"author" validate:"required"`
	Rows       []string `yaml:"rows" validate:"required,min=1"`
	LeastMoves int      `yaml:"leastMoves" validate:"gte=1"`
	Draft      bool     `yaml:"draft"`
}

type Summary struct {
	Users  int
	Levels int
}

var validate = validator.New()

func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, errors.Join(util.ErrInvalidFixture, err)
	}
	for _, l := range f.Levels {
		if err := checkRows(l.Rows); err != nil {
			return nil, fmt.Errorf("%w: level %q: %v", util.ErrInvalidFixture, l.Name, err)
		}
	}
	return &f, nil
}

// checkRows 行宽一致，且恰好一个起点 4 和至少一个出口 3
func checkRows(rows []string) error {
	width := len(rows[0])
	starts, exits := 0, 0
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("row %d has width %d, want %d", i, len(row), width)
		}
		starts += strings.Count(row, "4")
		exits += strings.Count(row, "3")
	}
	if starts != 1 {
		return fmt.Errorf("want exactly one start, got %d", starts)
	}
	if exits == 0 {
		return errors.New("no exit")
	}
	return nil
}

// Apply 在一个事务内写入 fixture。同名用户复用已有行；每个关卡附带作者的初始纪录
func Apply(ctx context.Context, db *gorm.DB, f *Fixture) (Summary, error) {
	var summary Summary
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := make(map[string]*model.User, len(f.Users))
		for _, uf := range f.Users {
			role := uf.Role
			if role == "" {
				role = model.Player
			}
			u := &model.User{}
			err := tx.Where("name = ?", uf.Name).First(u).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				u = &model.User{Name: uf.Name, Role: role}
				if err := tx.Create(u).Error; err != nil {
					return err
				}
				summary.Users++
			} else if err != nil {
				return err
			}
			users[uf.Name] = u
		}

		for _, lf := range f.Levels {
			author, ok := users[lf.Author]
			if !ok {
				author = &model.User{}
				if err := tx.Where("name = ?", lf.Author).First(author).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("%w: level %q: unknown author %q", util.ErrInvalidFixture, lf.Name, lf.Author)
					}
					return err
				}
				users[lf.Author] = author
			}

			level := &model.Level{
				UserID:     author.ID,
				Name:       lf.Name,
				Data:       strings.Join(lf.Rows, "\n"),
				Width:      len(lf.Rows[0]),
				Height:     len(lf.Rows),
				LeastMoves: lf.LeastMoves,
				IsDraft:    lf.Draft,
				LevelAggregates: model.LevelAggregates{
					CalcDifficultyEstimate:   -1,
					CalcDifficultyCompletion: -1,
				},
			}
			if err := tx.Create(level).Error; err != nil {
				return err
			}
			if err := tx.Create(&model.Record{LevelID: level.ID, UserID: author.ID, Moves: lf.LeastMoves}).Error; err != nil {
				return err
			}
			summary.Levels++
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	logger.Log.Info("Fixture applied",
		zap.Int("users", summary.Users),
		zap.Int("levels", summary.Levels))
	return summary, nil
}
