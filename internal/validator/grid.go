// Package validator 校验玩家提交的移动序列能否把角色从起点送到出口
package validator

import (
	"fmt"
	"playstats_backend/internal/util"
	"strings"
)

type Direction int

const (
	Left  Direction = 1
	Up    Direction = 2
	Right Direction = 3
	Down  Direction = 4
)

// Grid 是校验所需的关卡只读视图
type Grid struct {
	Data   string
	Width  int
	Height int
}

type Result struct {
	Valid  bool `json:"valid"`
	FinalX int  `json:"finalX"`
	FinalY int  `json:"finalY"`
}

// Validator 无副作用，可被替换为完整的关卡模拟器
type Validator interface {
	Validate(moves []Direction, grid Grid) (Result, error)
}

const (
	cellWall  = '1'
	cellExit  = '3'
	cellStart = '4'
)

// GridValidator 只识别墙、起点和出口，其余格子视为空地
type GridValidator struct{}

func NewGridValidator() *GridValidator {
	return &GridValidator{}
}

func (GridValidator) Validate(moves []Direction, grid Grid) (Result, error) {
	if len(moves) == 0 {
		return Result{}, fmt.Errorf("%w: empty", util.ErrInvalidMoves)
	}
	rows := parseRows(grid)
	x, y, ok := findStart(rows)
	if !ok {
		return Result{}, fmt.Errorf("%w: level has no start", util.ErrInvalidMoves)
	}

	for i, d := range moves {
		nx, ny := x, y
		switch d {
		case Left:
			nx--
		case Up:
			ny--
		case Right:
			nx++
		case Down:
			ny++
		default:
			return Result{}, fmt.Errorf("%w: unknown direction %d at %d", util.ErrInvalidMoves, d, i)
		}
		if ny < 0 || ny >= len(rows) || nx < 0 || nx >= len(rows[ny]) || rows[ny][nx] == cellWall {
			return Result{Valid: false, FinalX: x, FinalY: y}, nil
		}
		x, y = nx, ny
	}
	return Result{Valid: rows[y][x] == cellExit, FinalX: x, FinalY: y}, nil
}

func parseRows(grid Grid) []string {
	rows := strings.Split(strings.ReplaceAll(grid.Data, "\r\n", "\n"), "\n")
	if grid.Height > 0 && len(rows) > grid.Height {
		rows = rows[:grid.Height]
	}
	if grid.Width > 0 {
		for i, r := range rows {
			if len(r) > grid.Width {
				rows[i] = r[:grid.Width]
			}
		}
	}
	return rows
}

func findStart(rows []string) (int, int, bool) {
	for y, r := range rows {
		if x := strings.IndexByte(r, cellStart); x >= 0 {
			return x, y, true
		}
	}
	return 0, 0, false
}
