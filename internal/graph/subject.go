// Package graph 计划图模型：计划归属、模型输出格式，以及把输出整理成节点和边的规则
package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Scope 计划面向个人还是社区
type Scope string

const (
	ScopeIndividual Scope = "individual"
	ScopeCommunity  Scope = "community"
)

var ErrInvalidSubject = errors.New("invalid subject")

// ParseScope 解析路径里的 scope，不区分大小写
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeIndividual:
		return ScopeIndividual, nil
	case ScopeCommunity:
		return ScopeCommunity, nil
	}
	return "", fmt.Errorf("%w: unknown scope %q", ErrInvalidSubject, s)
}

// TokenBudget 社区计划给更多 token
func TokenBudget(scope Scope) int {
	if scope == ScopeCommunity {
		return 1200
	}
	return 800
}

// Subject 计划的归属，用户或社区二选一
type Subject struct {
	Scope Scope
	ID    uint64
}

func Individual(userID uint64) Subject { return Subject{Scope: ScopeIndividual, ID: userID} }

func Community(communityID uint64) Subject { return Subject{Scope: ScopeCommunity, ID: communityID} }

func (s Subject) Validate() error {
	if s.Scope != ScopeIndividual && s.Scope != ScopeCommunity {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidSubject, s.Scope)
	}
	if s.ID == 0 {
		return fmt.Errorf("%w: missing %s id", ErrInvalidSubject, s.Scope)
	}
	return nil
}

// Key 用作锁、缓存和消息的 key，如 individual:42
func (s Subject) Key() string {
	return string(s.Scope) + ":" + strconv.FormatUint(s.ID, 10)
}

func (s Subject) String() string { return s.Key() }

// UserID / CommunityID 对应表里两个可空列
func (s Subject) UserID() *uint64 {
	if s.Scope != ScopeIndividual {
		return nil
	}
	id := s.ID
	return &id
}

func (s Subject) CommunityID() *uint64 {
	if s.Scope != ScopeCommunity {
		return nil
	}
	id := s.ID
	return &id
}
