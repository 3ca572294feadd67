package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Ballot 选票定义文件
type Ballot struct {
	Roles []BallotRole `toml:"roles" validate:"required,min=1,dive"`
}

// BallotRole 职位及其候选人
type BallotRole struct {
	Name       string            `toml:"name" validate:"required,max=128"`
	OrderIndex int               `toml:"order_index"`
	Candidates []BallotCandidate `toml:"candidates" validate:"dive"`
}

// BallotCandidate 候选人
type BallotCandidate struct {
	Name      string `toml:"name" validate:"required,max=128"`
	StudyInfo string `toml:"study_info"`
	PhotoURL  string `toml:"photo_url" validate:"omitempty,url"`
}

// parseBallot 解析并校验选票定义，order_index不能重复
func parseBallot(data []byte) (*Ballot, error) {
	var b Ballot
	if err := toml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("解析选票文件失败: %w", err)
	}
	if err := validator.New().Struct(&b); err != nil {
		return nil, fmt.Errorf("选票文件校验失败: %w", err)
	}

	seen := make(map[int]string, len(b.Roles))
	for _, r := range b.Roles {
		if prev, ok := seen[r.OrderIndex]; ok {
			return nil, fmt.Errorf("order_index %d 重复: %q 和 %q", r.OrderIndex, prev, r.Name)
		}
		seen[r.OrderIndex] = r.Name
	}
	return &b, nil
}

func loadBallot(path string) (*Ballot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseBallot(data)
}
