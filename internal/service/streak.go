package service

import (
	"fmt"
	"sort"
	"time"
)

// Breakdown 表示两个时间点之间按日历拆解后的时长。
// "2 个月"指两个完整的日历月，而不是固定的 60 天；秒以下精度直接截断。
type Breakdown struct {
	Years   int
	Months  int
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

// IsZero 判断分解结果是否为零时长。
func (b Breakdown) IsZero() bool {
	return b.Years == 0 && b.Months == 0 && b.Days == 0 &&
		b.Hours == 0 && b.Minutes == 0 && b.Seconds == 0
}

// Format 按照历史版本的展示格式输出，如 "0a 2m 5d, 2h 30m 45s"。
func (b Breakdown) Format() string {
	return fmt.Sprintf("%da %dm %dd, %dh %dm %ds",
		b.Years, b.Months, b.Days, b.Hours, b.Minutes, b.Seconds)
}

// Elapsed 计算 from 到 to 的日历感知时长分解。
// 算法：先按整月推进一个锚点（月末截断而非归一化），剩余部分再拆成天和时分秒。
// to 早于 from 时返回零值。
func Elapsed(from, to time.Time) Breakdown {
	from = from.In(to.Location())
	if !from.Before(to) {
		return Breakdown{}
	}

	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	anchor := addMonthsClamped(from, months)
	if anchor.After(to) {
		months--
		anchor = addMonthsClamped(from, months)
	}

	rest := int64(to.Sub(anchor) / time.Second)

	return Breakdown{
		Years:   months / 12,
		Months:  months % 12,
		Days:    int(rest / 86400),
		Hours:   int(rest % 86400 / 3600),
		Minutes: int(rest % 3600 / 60),
		Seconds: int(rest % 60),
	}
}

// ElapsedMinutes 返回 from 到 to 的整分钟数，to 早于 from 时为 0。
func ElapsedMinutes(from, to time.Time) int64 {
	if !from.Before(to) {
		return 0
	}
	return int64(to.Sub(from) / time.Minute)
}

// addMonthsClamped 将 t 前推 months 个月，目标月份不存在对应日期时截断到月末。
// time.AddDate 会把 1月31日+1月 归一化成 3月初，这里需要 dateutil 式的月末语义。
func addMonthsClamped(t time.Time, months int) time.Time {
	monthIndex := int(t.Month()) - 1 + months
	year := t.Year() + monthIndex/12
	monthIndex %= 12
	if monthIndex < 0 {
		monthIndex += 12
		year--
	}

	month := time.Month(monthIndex + 1)
	day := t.Day()
	if last := daysInMonth(year, month); day > last {
		day = last
	}

	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PersonalRecord 根据行为的全部开始时间计算历史最长间隔（个人纪录）。
// 纪录只取按时间排序后相邻两次之间的最大间隔；少于两条记录时退化为当前持续时长本身。
func PersonalRecord(starts []time.Time, elapsed time.Duration) time.Duration {
	if len(starts) < 2 {
		return elapsed
	}

	sorted := make([]time.Time, len(starts))
	copy(sorted, starts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var record time.Duration
	for i := 1; i < len(sorted); i++ {
		if gap := sorted[i].Sub(sorted[i-1]); gap > record {
			record = gap
		}
	}

	return record
}

// 里程碑阈值：3 天 / 5 天 / 21 天，超过后与个人纪录比较。
const (
	MilestoneBaseThreshold  = 3 * 24 * time.Hour
	MilestoneSolidThreshold = 5 * 24 * time.Hour
	MilestoneLongThreshold  = 21 * 24 * time.Hour
)

// 里程碑标签。
const (
	MilestoneLabelCritical  = "危险区"
	MilestoneLabelBase      = "基础目标"
	MilestoneLabelSolid     = "稳固目标"
	MilestoneLabelRecord    = "你的纪录"
	MilestoneLabelNewRecord = "新纪录"
)

// Milestone 描述当前持续时长所处的阶段与进度。
// Progress 相对当前激活阈值，封顶 1.0；RecordProgress 相对个人纪录，不封顶。
type Milestone struct {
	Label          string
	Threshold      time.Duration
	Progress       float64
	RecordProgress float64
	NewRecord      bool
}

// ComputeMilestone 根据当前持续时长与个人纪录选出阶段标签及进度。
func ComputeMilestone(elapsed, record time.Duration) Milestone {
	milestone := Milestone{}

	switch {
	case elapsed < MilestoneBaseThreshold:
		milestone.Label = MilestoneLabelCritical
		milestone.Threshold = MilestoneBaseThreshold
	case elapsed < MilestoneSolidThreshold:
		milestone.Label = MilestoneLabelBase
		milestone.Threshold = MilestoneSolidThreshold
	case elapsed < MilestoneLongThreshold:
		milestone.Label = MilestoneLabelSolid
		milestone.Threshold = MilestoneLongThreshold
	case record > 0 && elapsed < record:
		milestone.Label = MilestoneLabelRecord
		milestone.Threshold = record
	default:
		milestone.Label = MilestoneLabelNewRecord
		milestone.NewRecord = true
		milestone.Threshold = record
		if milestone.Threshold <= 0 {
			milestone.Threshold = elapsed
		}
	}

	if milestone.Threshold > 0 {
		milestone.Progress = float64(elapsed) / float64(milestone.Threshold)
		if milestone.Progress > 1 {
			milestone.Progress = 1
		}
	}

	if record > 0 {
		milestone.RecordProgress = float64(elapsed) / float64(record)
	}

	return milestone
}

// RiskLevel 表示同星期几历史风险的等级。
type RiskLevel string

// 风险等级枚举。
const (
	RiskLevelNone    RiskLevel = "none"
	RiskLevelLow     RiskLevel = "low"
	RiskLevelHigh    RiskLevel = "high"
	RiskLevelExtreme RiskLevel = "extreme"
)

var riskMessages = map[RiskLevel]string{
	RiskLevelNone:    "历史上没有发生在今天这个星期几的记录，保持住。",
	RiskLevelLow:     "今天这个星期几偶有记录，风险较低，照常留意即可。",
	RiskLevelHigh:    "历史记录中有相当比例落在今天这个星期几，注意触发场景。",
	RiskLevelExtreme: "一半以上的历史记录都发生在今天这个星期几，提前安排替代活动。",
}

// WeekdayRisk 描述“今天这个星期几”的历史发生频率。
type WeekdayRisk struct {
	Level   RiskLevel
	Matches int
	Total   int
	Ratio   float64
	Message string
}

// ComputeWeekdayRisk 统计历史开始时间中与 now 同星期几的占比并分级。
// 纯频率比对，不做显著性检验：0 次命中为 none，<20% 为 low，<50% 为 high，其余 extreme。
func ComputeWeekdayRisk(starts []time.Time, now time.Time) WeekdayRisk {
	risk := WeekdayRisk{Total: len(starts)}

	weekday := now.Weekday()
	for _, start := range starts {
		if start.In(now.Location()).Weekday() == weekday {
			risk.Matches++
		}
	}

	if risk.Total > 0 {
		risk.Ratio = float64(risk.Matches) / float64(risk.Total)
	}

	switch {
	case risk.Matches == 0:
		risk.Level = RiskLevelNone
	case risk.Ratio < 0.2:
		risk.Level = RiskLevelLow
	case risk.Ratio < 0.5:
		risk.Level = RiskLevelHigh
	default:
		risk.Level = RiskLevelExtreme
	}

	risk.Message = riskMessages[risk.Level]
	return risk
}
