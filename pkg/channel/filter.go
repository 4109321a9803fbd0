package channel

import (
	"fmt"
	"strings"
)

// MatchMode 群组匹配模式，两种模式互斥
type MatchMode string

const (
	// MatchExact 来源必须与监控群组标识完全一致
	MatchExact MatchMode = "exact"
	// MatchSuffix 来源以群组域后缀结尾即可
	MatchSuffix MatchMode = "suffix"
)

// Filter 入站消息的成员判定
type Filter struct {
	Mode    MatchMode
	GroupID string
	Suffix  string
}

// NewFilter 根据配置创建过滤器
func NewFilter(mode MatchMode, groupID, suffix string) (Filter, error) {
	groupID = strings.TrimSpace(groupID)
	suffix = strings.TrimSpace(suffix)

	switch mode {
	case MatchExact, "":
		if groupID == "" {
			return Filter{}, fmt.Errorf("exact match requires a monitored group id")
		}
		return Filter{Mode: MatchExact, GroupID: groupID}, nil
	case MatchSuffix:
		if suffix == "" {
			suffix = GroupSuffix
		}
		return Filter{Mode: MatchSuffix, GroupID: groupID, Suffix: suffix}, nil
	default:
		return Filter{}, fmt.Errorf("unknown match mode %q", mode)
	}
}

// Match 判断来源是否属于监控群组
func (f Filter) Match(origin string) bool {
	switch f.Mode {
	case MatchExact:
		return origin != "" && origin == f.GroupID
	case MatchSuffix:
		return f.Suffix != "" && strings.HasSuffix(origin, f.Suffix)
	default:
		return false
	}
}

// String 返回过滤器描述
func (f Filter) String() string {
	if f.Mode == MatchSuffix {
		return "suffix:" + f.Suffix
	}
	return "exact:" + f.GroupID
}
